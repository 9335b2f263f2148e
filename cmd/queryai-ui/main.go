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

	"github.com/queryai/queryai/internal/agent"
	"github.com/queryai/queryai/internal/api"
	"github.com/queryai/queryai/internal/api/uistatic"
	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/nl2sql"
	"github.com/queryai/queryai/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("queryai-ui")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	generator, err := nl2sql.NewFromConfig(context.Background(), cfg.AI)
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("sql generator ready",
		slog.String("provider", generator.Provider()),
		slog.String("model", generator.Model()),
	)

	sessionDeps := agent.DependenciesFromConfig(cfg, generator, logger)
	deps := api.Dependencies{
		Logger:            logger,
		OpenSession:       api.AgentSessions(sessionDeps),
		DefaultDatabase:   cfg.Database.URI,
		UI:                uistatic.Handler(),
		DependencyTimeout: 2 * time.Second,
		Readiness: api.CheckDatabase(cfg.Database.URI, database.PoolConfig{
			MaxOpenConns: 1,
			PingTimeout:  cfg.Database.PingTimeout,
		}),
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
		logger.Info("starting ui server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ui server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down ui server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
