// Package main runs the control plane: the REST API listing rules, checking
// requirements and serving the configure pages, plus the observability server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/rafaeljc/discountrules/internal/app"
	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/controlapi"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/requirement"
	"github.com/rafaeljc/discountrules/internal/routing"
	"github.com/rafaeljc/discountrules/internal/store"
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

	infra, err := app.Bootstrap(ctx, "discountrules-control")
	if err != nil {
		return err
	}
	defer infra.Close()

	cfg := infra.Config
	logger := infra.Logger

	settingsStore, err := infra.Settings(ctx)
	if err != nil {
		return err
	}

	rules, err := requirement.NewDefaultRegistry(logger, settingsStore)
	if err != nil {
		return fmt.Errorf("failed to build rule registry: %w", err)
	}

	// Install is idempotent, so every start refreshes the label texts.
	if err := rules.InstallAll(ctx, store.NewPostgresLabels(infra.DB)); err != nil {
		return fmt.Errorf("failed to install rule labels: %w", err)
	}

	routes := routing.NewTable(cfg.Routing.PathBase)
	skipAuth := cfg.Server.Control.APIKeyHash == "" && cfg.App.Environment != config.EnvironmentProduction
	if skipAuth {
		logger.Warn("control api authentication disabled: no API key hash configured")
	}
	api := controlapi.NewAPIWithConfig(logger, rules, settingsStore, routes, cfg.Server.Control.APIKeyHash, skipAuth)

	obs := observability.NewServer(logger, &cfg.Observability, infra.Checkers()...)
	obs.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Control.Addr(),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.Control.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.Control.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.Control.WriteTimeout,
		IdleTimeout:       cfg.Server.Control.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.Control.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("control api listening",
			slog.String("addr", srv.Addr),
			slog.Bool("tls", cfg.Server.Control.TLSEnabled),
			slog.String("path_base", routes.PathBase()),
		)

		var err error
		if cfg.Server.Control.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.Control.TLSCert, cfg.Server.Control.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("control api failed: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control api shutdown failed", slog.String("error", err.Error()))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("service exited")
	return nil
}
