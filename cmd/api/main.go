package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/config"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/bootstrap"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/repository"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/service"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/logger"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

const serviceName = "collab-graph-relay"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.App.Environment, cfg.App.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	lg := logger.Get()

	bootstrap.SetGinMode(cfg.App.Environment)

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		lg.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewCollector("collab")
	repo := repository.NewPresenceRepository(rdb)
	relay := service.NewRelayService(repo, transport.NewRedisTransport(rdb, lg), metrics, service.RelayConfig{
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		Retention:         cfg.Presence.Retention,
		SweepSchedule:     cfg.Presence.SweepSchedule,
	}, lg.Named("relay"))
	layoutSvc := service.NewLayoutService(layout.Config{
		Width:      cfg.Layout.CanvasWidth,
		Height:     cfg.Layout.CanvasHeight,
		Iterations: cfg.Layout.Iterations,
	}, metrics, lg.Named("layout"))

	if err := relay.StartSweeper(); err != nil {
		lg.Fatal("Failed to start roster sweeper", zap.Error(err))
	}
	defer relay.Stop()

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		Redis:       rdb,
		Relay:       relay,
		Layout:      layoutSvc,
		Metrics:     metrics,
		Logger:      lg.Named("http"),
	})

	// Shutdown does not wait for hijacked websocket connections; cancelling
	// the base context stops their relay pumps.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	// no WriteTimeout: websocket connections are long lived
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	go func() {
		lg.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server shutdown error", zap.Error(err))
	}
	lg.Info("Server stopped")
}
