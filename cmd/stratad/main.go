// stratad runs the strata storage engine as a daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/strata/internal/logging"
	"github.com/xtxerr/strata/internal/storage"
	"github.com/xtxerr/strata/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "strata.yaml", "config file path")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	jsonLogs := flag.Bool("json-logs", false, "log as JSON")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *jsonLogs)
	log := logging.Component("stratad")
	log.Info("starting", "version", Version)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no config file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	eng, err := storage.Open(cfg)
	if err != nil {
		log.Error("open storage", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		log.Error("start engine", "error", err)
		os.Exit(1)
	}

	// Periodic health report.
	healthCtx, stopHealth := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-healthCtx.Done():
				return
			case <-ticker.C:
				h := eng.HealthCheck()
				log.Info("health", "status", h.Status,
					"queue", h.QueueSize, "capacity", h.QueueCapacity,
					"optimistic", h.OptimisticKeys)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	stopHealth()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	eng.Flush(ctx)
	cancel()

	if err := eng.Close(); err != nil {
		log.Error("close engine", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
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
