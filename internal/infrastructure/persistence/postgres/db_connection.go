// Package postgres provides the SQL persistence layer for the key store.
// It manages a pgx connection pool and exposes it to gorm; SQLite is supported
// through the same gorm repository for local development.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// DBConnection manages PostgreSQL database connection pool lifecycle.
type DBConnection struct {
	pool   *pgxpool.Pool
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection creates a new PostgreSQL connection pool and performs an initial health check.
//
// Parameters:
//   - ctx: Context for connection timeout control
//   - cfg: Database configuration including host, port, credentials, and pool settings
//   - log: Logger instance for connection lifecycle events
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidRequest("database configuration is required")
	}
	log = log.WithComponent("postgres")

	log.Info(ctx, "Initializing PostgreSQL connection pool", logger.Fields{
		"host":      cfg.Host,
		"port":      cfg.Port,
		"database":  cfg.Database,
		"max_conns": cfg.MaxConns,
		"min_conns": cfg.MinConns,
	})

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, errors.ErrStorageBackend("postgres", "parse config", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	connTimeout := cfg.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		log.Error(ctx, "Failed to create database connection pool", err)
		return nil, errors.ErrStorageBackend("postgres", "connect", err)
	}

	return NewDBConnectionFromPool(ctx, pool, cfg, log)
}

// NewDBConnectionFromPool wraps an existing pool, verifying it with a ping.
func NewDBConnectionFromPool(ctx context.Context, pool *pgxpool.Pool, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	dbConn := &DBConnection{pool: pool, config: cfg, logger: log}
	if err := dbConn.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info(ctx, "PostgreSQL connection pool initialized", logger.Fields{
		"total_conns": pool.Stat().TotalConns(),
		"idle_conns":  pool.Stat().IdleConns(),
	})
	return dbConn, nil
}

// Pool returns the underlying pgxpool.Pool.
func (db *DBConnection) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping verifies database connectivity and responsiveness.
func (db *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	if err := db.pool.Ping(pingCtx); err != nil {
		db.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrStorageBackend("postgres", "ping", err)
	}

	latency := time.Since(startTime)
	if latency > 100*time.Millisecond {
		db.logger.Warn(ctx, "High database latency detected", logger.Fields{
			"latency_ms":   latency.Milliseconds(),
			"threshold_ms": 100,
		})
	}
	return nil
}

// HealthCheck reports pool statistics alongside a ping.
func (db *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, err
	}

	stats := db.pool.Stat()
	healthInfo := map[string]interface{}{
		"status":               "healthy",
		"total_connections":    stats.TotalConns(),
		"idle_connections":     stats.IdleConns(),
		"acquired_connections": stats.AcquiredConns(),
		"max_connections":      stats.MaxConns(),
		"acquire_count":        stats.AcquireCount(),
		"acquire_duration_ms":  stats.AcquireDuration().Milliseconds(),
	}

	if stats.IdleConns() == 0 && stats.TotalConns() >= stats.MaxConns() {
		db.logger.Warn(ctx, "Connection pool exhausted", logger.Fields{
			"total_conns": stats.TotalConns(),
			"max_conns":   stats.MaxConns(),
		})
		healthInfo["warning"] = "connection_pool_near_limit"
	}
	return healthInfo, nil
}

// Close gracefully shuts down the connection pool.
func (db *DBConnection) Close() {
	db.logger.Info(context.Background(), "Closing PostgreSQL connection pool", logger.Fields{
		"total_conns":    db.pool.Stat().TotalConns(),
		"acquired_conns": db.pool.Stat().AcquiredConns(),
	})
	db.pool.Close()
}
