package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/room-relay/internal/archive"
	"github.com/rickgao/room-relay/internal/config"
	"github.com/rickgao/room-relay/internal/heartbeat"
	"github.com/rickgao/room-relay/internal/room"
	"github.com/rickgao/room-relay/internal/router"
	"github.com/rickgao/room-relay/internal/server"
	"github.com/rickgao/room-relay/internal/store"
	"github.com/rickgao/room-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	var cfg *config.RelayConfig
	if *configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_url", cfg.Store.BaseURL,
		"archive_enabled", cfg.Database.Enabled(),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Room membership registry
	registry := room.NewRegistry(logger)

	// Message store client and persistence dispatcher
	storeClient := store.NewClient(
		cfg.Store.BaseURL,
		store.WithTimeout(cfg.Store.Timeout),
		store.WithRetries(cfg.Store.MaxRetries, cfg.Store.RetryBackoff),
		store.WithLogger(logger),
	)
	dispatcher := store.NewDispatcher(store.DispatcherConfig{
		QueueSize: cfg.Dispatcher.QueueSize,
		Workers:   cfg.Dispatcher.Workers,
	}, storeClient, logger)

	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		dispatcher.Stop(stopCtx)
	}()

	sinks := []router.Sink{dispatcher}

	// Optional Postgres archive
	if cfg.Database.Enabled() {
		logger.Info("connecting to archive database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err := archive.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer := archive.NewWriter(archive.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger)

		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			writer.Stop(stopCtx)
		}()

		sinks = append(sinks, writer)
		logger.Info("archive database connected")
	}

	// Event router and WebSocket hub
	rt := router.New(registry, logger, sinks...)
	hub := server.NewHub(server.HubConfig{
		Conn: server.ConnConfig{
			SendBuffer:   cfg.Connections.SendBuffer,
			WriteTimeout: cfg.Connections.WriteTimeout,
			PingInterval: cfg.Connections.PingInterval,
			ReadTimeout:  cfg.Connections.ReadTimeout,
		},
		AllowedOrigin: cfg.Server.AllowedOrigin,
	}, registry, rt, logger)

	// Heartbeat monitor
	monitor := heartbeat.New(heartbeat.Config{Interval: cfg.Heartbeat.Interval}, hub, logger)
	if err := monitor.Start(ctx); err != nil {
		logger.Error("failed to start heartbeat monitor", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		monitor.Stop(stopCtx)
	}()

	// HTTP server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.NewHandler(time.Now(), hub, registry, rt, dispatcher),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")
		hub.CloseAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("relay running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("relay exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}
