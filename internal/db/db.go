package db

import (
	"context"
	"time"

	"impostor_relay/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect открывает пул соединений и проверяет доступность базы
func Connect(url string) *pgxpool.Pool {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		logger.Fatal("db: invalid DATABASE_URL", "error", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("db: connect failed", "error", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Fatal("db: ping failed", "error", err)
	}

	logger.Info("db: connected", "max_conns", cfg.MaxConns)
	return pool
}
