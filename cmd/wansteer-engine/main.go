package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steerstack/wansteer/internal/api"
	"github.com/steerstack/wansteer/internal/collector"
	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/engine"
	"github.com/steerstack/wansteer/internal/metrics"
	"github.com/steerstack/wansteer/internal/routectl"
	"github.com/steerstack/wansteer/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting wansteer-engine",
		slog.String("address", cfg.Server.Address),
		slog.Duration("interval", cfg.Loop.Interval.Std()),
		slog.Int("links", len(cfg.Links)))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	probers := map[config.ProbeKind]collector.Prober{
		config.ProbePing: collector.NewPingProber(),
		config.ProbeSTUN: collector.NewSTUNProber(),
	}
	coll := collector.New(logger, cfg.Links, probers)

	var applier engine.Applier
	if cfg.Controller.DryRun {
		applier = routectl.NewNoopApplier(logger)
	} else {
		applier = routectl.NewHTTPApplier(cfg.Controller, logger)
	}

	loop, err := engine.NewLoop(logger, nil, cfg, coll, applier)
	if err != nil {
		logger.Error("failed to construct control loop", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := api.NewServer(cfg.Server, api.NewHandler(logger, loop))
	if err != nil {
		logger.Error("failed to create status server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the configuration file; an invalid file is rejected and
	// the running configuration stays in effect.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			next, err := config.Load(configPath)
			if err != nil {
				logger.Error("reload rejected", slog.Any("error", err))
				continue
			}
			if err := loop.Reconfigure(next); err != nil {
				logger.Error("reconfigure rejected", slog.Any("error", err))
				continue
			}
			logger.Info("configuration reload scheduled")
		}
	}()

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("status server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if runErr := loop.Run(ctx); runErr != nil && ctx.Err() == nil {
			logger.Error("control loop exited", slog.Any("error", runErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logger.Warn("control loop did not stop within grace period")
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("wansteer-engine stopped")
}
