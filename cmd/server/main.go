package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyxikitty/mpp-server/internal/audit"
	"github.com/nyxikitty/mpp-server/internal/config"
	"github.com/nyxikitty/mpp-server/internal/conn"
	"github.com/nyxikitty/mpp-server/internal/db"
	"github.com/nyxikitty/mpp-server/internal/events"
	"github.com/nyxikitty/mpp-server/internal/hub"
	"github.com/nyxikitty/mpp-server/internal/logging"
	"github.com/nyxikitty/mpp-server/internal/metrics"
	"github.com/nyxikitty/mpp-server/internal/server"
	"github.com/nyxikitty/mpp-server/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	var a *audit.Log
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBPool, logger)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("audit: failed to connect to database, continuing with log-only audit")
			a = audit.New(nil, logger)
		} else {
			pool = p
			a = audit.New(audit.NewPgSink(pool, logger), logger)
		}
	} else {
		a = audit.New(nil, logger)
	}

	var e *events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("events: failed to connect to nats, continuing without telemetry")
		} else {
			e = p
		}
	}

	h := hub.New(store.New(), metrics.New(), a, e, logger)

	stop := make(chan struct{})
	go h.RunTickScheduler(stop)

	gate := server.NewGate(cfg.ConnectRate, cfg.ConnectBurst)
	opts := conn.Options{Salt1: cfg.Salt1, Salt2: cfg.Salt2, Production: cfg.Production}
	srv := server.NewServer(h, gate, opts, logger)

	go func() {
		if err := srv.Start(":" + cfg.WSPort); err != nil {
			logger.Info().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	close(stop)
	a.Stop()
	e.Close()
	db.ClosePool(pool, logger)
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
