package dashboard

import (
	"log/slog"
	"time"

	"github.com/user/cortexdash/internal/config"
	"github.com/user/cortexdash/internal/live"
	"github.com/user/cortexdash/internal/store"
	"github.com/user/cortexdash/internal/types"
)

// Options configures a Dashboard. Zero durations fall back to the package
// defaults of the component they configure.
type Options struct {
	// Origin is the backend page origin, e.g. http://localhost:8000. The
	// live endpoint is derived from it.
	Origin  string
	Project string
	Backend Backend
	// Dialer overrides the websocket dialer.
	Dialer live.Dialer
	Policy live.Policy
	Sort   types.Sort

	RecentWindow   time.Duration
	ConfirmTimeout time.Duration
	LoadTimeout    time.Duration
	// ResyncSchedule is a cron expression for the periodic safety-net
	// resync. Empty disables it.
	ResyncSchedule string

	ChatTimeout      time.Duration
	ChatTickInterval time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Policy == (live.Policy{}) {
		o.Policy = live.DefaultPolicy()
	}
	if o.Sort == (types.Sort{}) {
		o.Sort = types.DefaultSort()
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = store.DefaultRecentWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// OptionsFromConfig maps the configuration file onto Options.
func OptionsFromConfig(cfg *config.Config, backend Backend) Options {
	return Options{
		Origin:  cfg.Server.URL,
		Project: cfg.Project,
		Backend: backend,
		Policy: live.Policy{
			ReconnectDelay: cfg.ReconnectDelay(),
			MaxAttempts:    cfg.Live.MaxReconnectAttempts,
			PingInterval:   cfg.PingInterval(),
		},
		Sort:             types.ParseSort(cfg.Sort.By, cfg.Sort.Order),
		RecentWindow:     cfg.RecentWindow(),
		ConfirmTimeout:   cfg.ConfirmTimeout(),
		LoadTimeout:      cfg.ServerTimeout(),
		ResyncSchedule:   cfg.Live.ResyncSchedule,
		ChatTickInterval: cfg.ChatTickInterval(),
	}
}
