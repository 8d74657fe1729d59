package main

import (
	"context"
	stderrors "errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/di"
	"birthday-wall/backend/pkg/health"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/pkg/router"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	appLog := logger.New(logConfig)
	logger.SetGlobal(appLog)

	appLog.Info("Starting application",
		"version", cfg.Server.Version,
		"env", cfg.Server.Env,
		"blob_backend", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, appLog)
	if err != nil {
		appLog.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Start(ctx)

	r := router.New(container)
	if cfg.Observability.OpenAPISchemaPath != "" {
		r.AddOpenAPIValidation(cfg.Observability.OpenAPISchemaPath)
	}
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLog.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var grpcHealth *health.GRPCServer
	if cfg.Server.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCHealthPort)
		if err != nil {
			appLog.LogError(err, "Failed to listen for gRPC health", "port", cfg.Server.GRPCHealthPort)
			os.Exit(1)
		}
		grpcHealth = health.NewGRPCServer(container.Health)
		g.Go(func() error {
			appLog.Info("gRPC health server starting", "port", cfg.Server.GRPCHealthPort)
			return grpcHealth.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if grpcHealth != nil {
			grpcHealth.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.LogError(err, "Server forced to shutdown")
		}
		return container.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.LogError(err, "Server stopped with error")
		os.Exit(1)
	}
	appLog.Info("Server exited gracefully")
}
