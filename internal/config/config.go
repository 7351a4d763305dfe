package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. CORTEXDASH_SERVER_URL
// overrides server.url.
const EnvPrefix = "CORTEXDASH_"

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	LogFile       string `json:"log_file"`
	LogMaxSizeMB  int    `json:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups"`
	LogMaxAgeDays int    `json:"log_max_age_days"`
	Project       string `json:"project"`
	Server        struct {
		URL            string `json:"url"`
		Token          string `json:"token"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"server"`
	Live struct {
		PingIntervalSeconds   int    `json:"ping_interval_seconds"`
		ReconnectDelaySeconds int    `json:"reconnect_delay_seconds"`
		MaxReconnectAttempts  int    `json:"max_reconnect_attempts"`
		RecentWindowSeconds   int    `json:"recent_window_seconds"`
		ConfirmTimeoutSeconds int    `json:"confirm_timeout_seconds"`
		ResyncSchedule        string `json:"resync_schedule"`
	} `json:"live"`
	Sort struct {
		By    string `json:"by"`
		Order string `json:"order"`
	} `json:"sort"`
	Chat struct {
		TickIntervalMS int `json:"tick_interval_ms"`
	} `json:"chat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".cortexdash"),
		LogLevel:      "info",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
	cfg.Server.URL = "http://localhost:8000"
	cfg.Server.TimeoutSeconds = 30
	cfg.Live.PingIntervalSeconds = 30
	cfg.Live.ReconnectDelaySeconds = 3
	cfg.Live.MaxReconnectAttempts = 5
	cfg.Live.RecentWindowSeconds = 5
	cfg.Live.ConfirmTimeoutSeconds = 10
	cfg.Live.ResyncSchedule = "@every 5m"
	cfg.Sort.By = "last_accessed"
	cfg.Sort.Order = "desc"
	cfg.Chat.TickIntervalMS = 1000
	return cfg
}

// DefaultPath is ~/.cortexdash/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".cortexdash", "config.json")
}

// Load reads the config file at path, writing defaults if it does not exist.
// A .env file in the working directory or next to the config is then loaded
// into the environment (existing variables win), and CORTEXDASH_* variables
// override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env", filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides every known key from CORTEXDASH_<KEY> where dots and the
// key are upper-cased, e.g. live.resync_schedule -> CORTEXDASH_LIVE_RESYNC_SCHEDULE.
func applyEnv(cfg *Config) error {
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	changed := false
	for key, current := range flat {
		raw, ok := os.LookupEnv(EnvName(key))
		if !ok {
			continue
		}
		v, err := coerce(current, raw)
		if err != nil {
			return fmt.Errorf("env %s: %w", EnvName(key), err)
		}
		flat[key] = v
		changed = true
	}
	if !changed {
		return nil
	}
	return fromMap(Unflatten(flat), cfg)
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// coerce parses raw into the JSON type of current.
func coerce(current any, raw string) (any, error) {
	switch current.(type) {
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a generic nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, cfg *Config) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// ListValues returns the flattened configuration, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the effective value of a dot-separated key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	if v, ok := flat[key]; ok {
		return v, nil
	}

	// keys outside the struct only live in the file
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(raw)[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}

// SetValue sets a dot-separated key in the config file. Known keys are
// parsed into their existing type; unknown keys are parsed as JSON when
// possible and stored as a string otherwise. The file must already exist.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	flat := Flatten(raw)
	current, known := flat[key]
	if !known {
		defaults, err := ListValues(Default(), false)
		if err != nil {
			return err
		}
		current, known = defaults[key]
	}

	var v any
	if known {
		if v, err = coerce(current, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	} else if err := json.Unmarshal([]byte(value), &v); err != nil {
		v = value
	}
	if _, isMap := v.(map[string]any); isMap {
		v = value
	}
	flat[key] = v

	var check Config
	nested := Unflatten(flat)
	if err := fromMap(nested, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ServerTimeout bounds a single REST request.
func (c *Config) ServerTimeout() time.Duration { return seconds(c.Server.TimeoutSeconds) }

// PingInterval is the keepalive period.
func (c *Config) PingInterval() time.Duration { return seconds(c.Live.PingIntervalSeconds) }

// ReconnectDelay is the fixed spacing between reconnect attempts.
func (c *Config) ReconnectDelay() time.Duration { return seconds(c.Live.ReconnectDelaySeconds) }

// RecentWindow is how long a created record stays flagged as recent.
func (c *Config) RecentWindow() time.Duration { return seconds(c.Live.RecentWindowSeconds) }

// ConfirmTimeout is how long an optimistic edit waits for its echo.
func (c *Config) ConfirmTimeout() time.Duration { return seconds(c.Live.ConfirmTimeoutSeconds) }

// ChatTickInterval is the elapsed-time refresh period of the chat panel.
func (c *Config) ChatTickInterval() time.Duration {
	return time.Duration(c.Chat.TickIntervalMS) * time.Millisecond
}
