// Package main provides the labelq allocation server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tberndt/labelq/internal/alloc"
	"github.com/tberndt/labelq/internal/config"
	"github.com/tberndt/labelq/internal/events"
	"github.com/tberndt/labelq/internal/metrics"
	"github.com/tberndt/labelq/internal/server"
	"github.com/tberndt/labelq/internal/store"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from the store on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		_ = closeLog()
	}()
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("LABELQ_JWT_SECRET must be set")
		os.Exit(1)
	}

	logger.Info("starting labelq-server", "port", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storeClient, err := store.NewClient(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storeClient.Close(context.Background()); err != nil {
			logger.Error("failed to close store client", "error", err)
		}
	}()

	if err := storeClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("LABELQ_WIPE_DB") == "true" {
		if err := storeClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe store", "error", err)
			os.Exit(1)
		}
		logger.Warn("store wiped on startup")
	}

	gateway, err := store.NewGateway(ctx, storeClient, store.Options{
		Profile:  store.Profile(cfg.StoreProfile),
		FetchCap: cfg.FetchCap,
		Timeout:  cfg.StoreTimeout,
		Logger:   logger,
	})
	cancel()
	if err != nil {
		logger.Error("failed to build store gateway", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	hub := events.NewHub(logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	engine := alloc.New(gateway, alloc.Config{
		Weights:     cfg.Weights,
		PerGroupCap: cfg.PerGroupCap,
		RetryPasses: cfg.RetryPasses,
	}, logger, collector, hub)

	srv := server.New(server.Options{
		Engine:      engine,
		Backlog:     gateway,
		Hub:         hub,
		Metrics:     collector,
		Logger:      logger,
		Port:        cfg.Port,
		JWTSecret:   cfg.JWTSecret,
		PageSizeMin: cfg.PageSizeMin,
		PageSizeMax: cfg.PageSizeMax,
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
