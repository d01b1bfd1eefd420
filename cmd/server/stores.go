package main

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"packflow/cmd/server/config"
	ledgerdb "packflow/internal/db/ledger"
	sagadb "packflow/internal/db/saga"
	"packflow/internal/ledger"
	"packflow/internal/reservation"
	sagapkg "packflow/internal/saga"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildStores wires the stock store and the saga store. With a
// DATABASE_URL both live in Postgres; without one they fall back to
// in-memory so the server still runs in development.
func buildStores(ctx context.Context, logger zerolog.Logger) (ledger.Store, sagapkg.Store, func(), error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Info().Msg("DATABASE_URL not set, using in-memory stores")
		return ledger.NewMemoryStore(nil), sagapkg.NewMemoryStore(), func() {}, nil
	}

	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, nil, nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stockStore, err := ledgerdb.NewPostgresStoreWithSchema(setupCtx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	sagaStore, err := sagadb.NewPostgresStoreWithSchema(setupCtx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	logger.Info().Msg("postgres stores enabled")
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close postgres")
		}
	}
	return stockStore, sagaStore, cleanup, nil
}

// buildHoldRecorder wires the Redis hold tracker. Without a REDIS_URL
// holds are simply not recorded; the saga does not depend on them.
func buildHoldRecorder(ctx context.Context, logger zerolog.Logger) (reservation.HoldRecorder, func(), error) {
	if strings.TrimSpace(os.Getenv("REDIS_URL")) == "" {
		logger.Info().Msg("REDIS_URL not set, hold tracking disabled")
		return nil, func() {}, nil
	}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	holds := reservation.NewRedisHoldStore(client, cfg.Stream, cfg.HoldTTL, cfg.StreamMaxLen)
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	logger.Info().Str("stream", cfg.Stream).Msg("redis hold tracking enabled")
	return holds, cleanup, nil
}
