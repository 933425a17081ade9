package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vizql/vizql/internal/api"
	"github.com/vizql/vizql/internal/auth"
	"github.com/vizql/vizql/internal/config"
	"github.com/vizql/vizql/internal/dispatch"
	"github.com/vizql/vizql/internal/observability"
	"github.com/vizql/vizql/internal/querylang"
	"github.com/vizql/vizql/internal/registry"
	"github.com/vizql/vizql/internal/schema"
	"github.com/vizql/vizql/internal/seed"
	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/storage"
	s3store "github.com/vizql/vizql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("vizql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	connections := registry.New(registry.Options{
		MaxEngines: cfg.Registry.MaxEngines,
		CallerID:   auth.CallerID,
		Logger:     logger,
	})
	if cfg.Registry.ConnectionsFile != "" {
		if err := registry.LoadConnectionsFile(connections, cfg.Registry.ConnectionsFile); err != nil {
			logger.Error("failed to load connections", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var objectStore storage.ObjectReader
	if cfg.ObjectStore.Endpoint != "" {
		objectStore, err = s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	loader := &seed.Loader{Store: objectStore, Logger: logger}
	seedTables, err := loader.Load(context.Background(), cfg.Seed.Paths)
	if err != nil {
		logger.Error("failed to load seed datasets", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewManager(session.Options{
		Timeout: cfg.Sessions.Timeout,
		Seed:    seedTables,
		Logger:  logger,
	})

	dispatcher := &dispatch.Dispatcher{
		Registry: connections,
		Sessions: sessions,
		Language: querylang.Default{},
		RowLimit: cfg.Query.SQLRowLimit,
		Logger:   logger,
	}
	introspector := &schema.Introspector{
		Registry:         connections,
		Sessions:         sessions,
		CategoricalLimit: cfg.Schema.CategoricalLimit,
		Logger:           logger,
	}

	deps := api.Dependencies{
		Logger:            logger,
		Registry:          connections,
		Sessions:          sessions,
		Dispatcher:        dispatcher,
		Introspector:      introspector,
		UploadMaxBytes:    cfg.Upload.MaxBytes,
		Readiness:         api.CheckConnectionsConfigured(connections),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}

	// Release every cached engine handle and session engine exactly once.
	connections.DisposeAll()
	sessions.Shutdown()
}
