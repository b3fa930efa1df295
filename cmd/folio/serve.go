package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server and its OCR worker pool.

Documents submitted to /ocr/submit are split into per-page jobs and
processed in the background; poll /ocr/status and /ocr/result for
progress and extracted Markdown. Configuration is hot-reloaded from
the config file; the OCR backend is swapped without a restart.

Examples:
  folio serve                              # Use ~/.folio/config.yaml
  folio serve --config ./config.yaml       # Explicit config file
  NUM_WORKERS=8 folio serve                # Override worker count`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Resolve config: explicit flag wins, then the home config file
		// (written with defaults on first run).
		configPath := cfgFile
		if configPath == "" {
			if !h.ConfigExists() {
				if err := config.WriteDefault(h.ConfigPath()); err != nil {
					return fmt.Errorf("failed to write default config: %w", err)
				}
			}
			configPath = h.ConfigPath()
		}

		mgr, err := config.NewManager(configPath)
		if err != nil {
			return err
		}

		cfg := mgr.Get()
		logger := newLogger(cfg)
		mgr.OnChange(func(c *config.Config) {
			logLevel.Set(c.LogLevel())
		})
		mgr.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// logLevel is shared with the config reload callback so log verbosity
// follows the config file.
var logLevel = new(slog.LevelVar)

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel.Set(cfg.LogLevel())
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
