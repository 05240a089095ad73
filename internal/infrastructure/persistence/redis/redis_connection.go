// Package redis provides Redis connection management and the Redis-backed
// user key repository. It supports standalone, cluster, and sentinel deployment modes.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// ConnectionMode defines Redis deployment mode
type ConnectionMode string

const (
	// ModeStandalone represents single Redis instance
	ModeStandalone ConnectionMode = "standalone"
	// ModeCluster represents Redis cluster mode
	ModeCluster ConnectionMode = "cluster"
	// ModeSentinel represents Redis sentinel mode for high availability
	ModeSentinel ConnectionMode = "sentinel"
)

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// Connect establishes the Redis connection based on the configured mode and
// validates connectivity with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	client, err := rc.newClient()
	if err != nil {
		return errors.ErrStorageBackend("redis", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err)
		_ = client.Close()
		return errors.ErrStorageBackend("redis", "ping", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established", logger.Fields{
		"mode":      rc.mode(),
		"addresses": rc.config.Addresses,
		"pool_size": rc.config.PoolSize,
	})
	return nil
}

func (rc *RedisConnection) mode() ConnectionMode {
	if rc.config.Mode == "" {
		return ModeStandalone
	}
	return ConnectionMode(rc.config.Mode)
}

func (rc *RedisConnection) newClient() (redis.UniversalClient, error) {
	if len(rc.config.Addresses) == 0 {
		return nil, fmt.Errorf("redis addresses not configured")
	}

	var tlsConfig *tls.Config
	if rc.config.EnableTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch rc.mode() {
	case ModeStandalone:
		return redis.NewClient(&redis.Options{
			Addr:         rc.config.Addresses[0],
			Password:     rc.config.Password,
			DB:           rc.config.DB,
			PoolSize:     rc.config.PoolSize,
			MinIdleConns: rc.config.MinIdleConns,
			DialTimeout:  rc.config.DialTimeout,
			ReadTimeout:  rc.config.ReadTimeout,
			WriteTimeout: rc.config.WriteTimeout,
			MaxRetries:   rc.config.MaxRetries,
			TLSConfig:    tlsConfig,
		}), nil
	case ModeCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        rc.config.Addresses,
			Password:     rc.config.Password,
			PoolSize:     rc.config.PoolSize,
			MinIdleConns: rc.config.MinIdleConns,
			DialTimeout:  rc.config.DialTimeout,
			ReadTimeout:  rc.config.ReadTimeout,
			WriteTimeout: rc.config.WriteTimeout,
			MaxRetries:   rc.config.MaxRetries,
			TLSConfig:    tlsConfig,
		}), nil
	case ModeSentinel:
		if rc.config.SentinelMaster == "" {
			return nil, fmt.Errorf("sentinel master name not configured")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    rc.config.SentinelMaster,
			SentinelAddrs: rc.config.Addresses,
			Password:      rc.config.Password,
			DB:            rc.config.DB,
			PoolSize:      rc.config.PoolSize,
			MinIdleConns:  rc.config.MinIdleConns,
			DialTimeout:   rc.config.DialTimeout,
			ReadTimeout:   rc.config.ReadTimeout,
			WriteTimeout:  rc.config.WriteTimeout,
			MaxRetries:    rc.config.MaxRetries,
			TLSConfig:     tlsConfig,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported Redis mode: %s", rc.config.Mode)
	}
}

// GetClient returns the Redis client, or nil before Connect succeeds.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return errors.ErrStorage("redis connection not initialized")
	}
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errors.ErrStorageBackend("redis", "ping", err)
	}
	return nil
}

// HealthCheck reports connectivity, latency and pool statistics.
func (rc *RedisConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if rc.client == nil {
		return nil, errors.ErrStorage("redis connection not initialized")
	}

	health := make(map[string]interface{})
	start := time.Now()
	err := rc.client.Ping(ctx).Err()
	health["connected"] = err == nil
	health["latency_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		health["error"] = err.Error()
		return health, errors.ErrStorageBackend("redis", "ping", err)
	}

	stats := rc.client.PoolStats()
	health["pool_hits"] = stats.Hits
	health["pool_misses"] = stats.Misses
	health["pool_timeouts"] = stats.Timeouts
	health["total_conns"] = stats.TotalConns
	health["idle_conns"] = stats.IdleConns
	return health, nil
}

// Close gracefully closes Redis connection and releases resources.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.client = nil
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}
