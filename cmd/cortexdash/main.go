package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/cortexdash/internal/config"
	"github.com/user/cortexdash/pkg/cortexapi"
)

var (
	cfgPath    string
	projectArg string
)

var rootCmd = &cobra.Command{
	Use:           "cortexdash",
	Short:         "Live dashboard and chat client for a Cortex memory server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVarP(&projectArg, "project", "p", "", "project database path (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, exiting on failure. The --project flag
// wins over the file and the environment.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if projectArg != "" {
		cfg.Project = projectArg
	}
	return cfg
}

func newClient(cfg *config.Config) *cortexapi.Client {
	return cortexapi.New(cortexapi.Config{
		BaseURL: cfg.Server.URL,
		Token:   cfg.Server.Token,
		Timeout: cfg.ServerTimeout(),
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs the default slog logger. With log_file set, logs go
// to a rotating file; otherwise to stderr, where interactive commands only
// show warnings unless debug logging is on. The returned closer closes the
// file sink.
func setupLogging(cfg *config.Config, interactive bool) io.Closer {
	level := parseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		if interactive && level > slog.LevelDebug && level < slog.LevelWarn {
			level = slog.LevelWarn
		}
		opts := &slog.HandlerOptions{Level: level}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return io.NopCloser(nil)
	}
	opts := &slog.HandlerOptions{Level: level}

	path := cfg.LogFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.DataDir, path)
	}
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(sink, opts)))
	return sink
}
