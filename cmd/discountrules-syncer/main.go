// Package main runs the worker that hydrates the Redis settings cache from PostgreSQL.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/rafaeljc/discountrules/internal/app"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/store"
	"github.com/rafaeljc/discountrules/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	infra, err := app.Bootstrap(ctx, "discountrules-syncer")
	if err != nil {
		return err
	}
	defer infra.Close()

	cfg := infra.Config
	logger := infra.Logger

	obs := observability.NewServer(logger, &cfg.Observability, infra.Checkers()...)
	obs.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if !cfg.Syncer.Enabled {
		logger.Warn("syncer disabled by configuration, idling until shutdown")
		<-ctx.Done()
		return nil
	}

	svc := syncer.New(logger, cfg.Syncer, store.NewPostgresSettings(infra.DB), infra.RemoteSettings())
	return svc.Run(ctx)
}
