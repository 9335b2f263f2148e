package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/queryai/queryai/internal/cli/queryai"
	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("queryai")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Attempt logs would interleave with the result table; keep them to
	// warnings unless a level was asked for.
	if _, ok := os.LookupEnv("QUERYAI_LOG_LEVEL"); !ok {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := queryai.Run(ctx, os.Args[1:], queryai.Options{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	})
	stop()
	os.Exit(code)
}
