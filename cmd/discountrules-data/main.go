// Package main runs the data plane: the gRPC RequirementService used on the
// checkout hot path.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rafaeljc/discountrules/internal/app"
	"github.com/rafaeljc/discountrules/internal/dataapi"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/requirement"
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

	infra, err := app.Bootstrap(ctx, "discountrules-data")
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

	// Bind first so a taken port fails before anything else starts.
	listener, err := net.Listen("tcp", cfg.Server.Data.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Server.Data.Addr(), err)
	}

	grpcServer, healthSrv := dataapi.NewServer(&cfg.Server.Data, logger, dataapi.NewAPI(rules))

	obs := observability.NewServer(logger, &cfg.Observability, infra.Checkers()...)
	obs.Start()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("data api listening", slog.String("addr", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	healthSrv.SetServingStatus(dataapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// GracefulStop has no deadline of its own.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.App.ShutdownTimeout):
		logger.Warn("graceful stop timed out, forcing")
		grpcServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("service exited")
	return nil
}
