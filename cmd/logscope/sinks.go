package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"logscope/internal/config"
	"logscope/internal/storage"
	"logscope/internal/storage/postgres"
	"logscope/internal/storage/redis"
)

type sinks struct {
	storage.Multi
	pg     *postgres.Store
	closer []func()
}

func (s *sinks) Close() {
	for i := len(s.closer) - 1; i >= 0; i-- {
		s.closer[i]()
	}
}

func openSinks(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (*sinks, error) {
	out := &sinks{}

	if cfg.Out != "" {
		out.Multi = append(out.Multi, storage.NewJSONLSink(cfg.Out, cfg.Errors))
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		out.closer = append(out.closer, store.Close)
		if cfg.PGMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				out.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		out.pg = store
		out.Multi = append(out.Multi, store)
	}

	if cfg.RedisAddr != "" {
		store, err := redis.NewStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix, cfg.RedisMaxLen)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.closer = append(out.closer, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
		out.Multi = append(out.Multi, store)
	}

	if len(out.Multi) == 0 {
		return nil, fmt.Errorf("no output configured: set out, pg-dsn or redis-addr")
	}

	logger.Info("sinks ready",
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("redis", cfg.RedisAddr != ""),
	)
	return out, nil
}
