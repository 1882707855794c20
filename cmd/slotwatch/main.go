// Command slotwatch polls the consulate reservation calendar and posts an
// alert whenever appointment days open up.
//
// Usage:
//
//	slotwatch                          # built-in defaults, webhook from SLOTWATCH_WEBHOOK_URL
//	slotwatch -config slotwatch.yaml   # settings from YAML
//	slotwatch -once                    # single check, print its record, exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/visacheck/slotwatch"
)

func main() {
	configPath := flag.String("config", "", "path to slotwatch.yaml config file")
	once := flag.Bool("once", false, "run a single check and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *once); err != nil {
		logger.Error("slotwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, once bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	w, err := slotwatch.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("slotwatch: close", "error", err)
		}
	}()

	if once {
		c := w.RunOnce(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Info("slotwatch: stopped by user")
	return nil
}

func loadConfig(path string) (*slotwatch.Config, error) {
	if path == "" {
		return slotwatch.DefaultConfig(), nil
	}
	return slotwatch.LoadConfigFile(path)
}
