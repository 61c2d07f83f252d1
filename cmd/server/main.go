package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/config"
	"github.com/bengkelku/api/internal/ledger"
	"github.com/bengkelku/api/internal/router"
	"github.com/bengkelku/api/internal/service"
	"github.com/bengkelku/api/internal/snapshot"
	"github.com/bengkelku/api/internal/store/postgres"
	"github.com/bengkelku/api/internal/ws"
)

func main() {
	// .env is optional; real environments set variables directly
	if err := godotenv.Load(); err == nil {
		logrus.Info("loaded .env")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logrus.WithError(err).Fatal("ping database")
	}
	st := postgres.New(pool)

	// Redis is optional: without it the snapshot loader reads straight
	// from the store on every load.
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := cache.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Warn("redis unreachable, snapshot cache disabled")
			cache = nil
		}
	}
	loader := snapshot.NewLoader(st, cache, cfg.SnapshotTTL)

	hub := ws.NewHub()
	go hub.Run()

	orch := service.NewOrchestrator(st, ledger.NewInventoryUpdater(st),
		ledger.NewShopSync(st), ledger.NewWorkerSync(st), loader, hub)

	r := router.New(cfg, st, orch, loader, hub)

	logrus.WithField("port", cfg.Port).Info("starting server")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
