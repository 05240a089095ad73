// Package persistence selects and opens the configured user key store.
package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/internal/infrastructure/kms"
	"github.com/turtacn/keystore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/keystore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/keystore/internal/infrastructure/persistence/redis"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// Store is an opened repository together with the resources backing it.
type Store struct {
	Repository repository.UserKeyRepository
	Backend    constants.StorageBackend
	// DB is set for the SQL backends so other tables can share the connection.
	DB      *gorm.DB
	closers []func() error
}

// Close releases every connection the store opened, in reverse order.
func (s *Store) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// Open connects to the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Store, error) {
	store := &Store{Backend: cfg.Storage.Backend}

	var repo repository.UserKeyRepository
	switch cfg.Storage.Backend {
	case constants.StorageBackendMemory, "":
		store.Backend = constants.StorageBackendMemory
		repo = memory.NewUserKeyRepository(log)

	case constants.StorageBackendPostgres:
		conn, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		store.closers = append(store.closers, func() error { conn.Close(); return nil })
		db, err := postgres.OpenGorm(conn)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store.DB = db
		r := postgres.NewUserKeyRepository(db, string(constants.StorageBackendPostgres), log)
		if cfg.Database.AutoMigrate {
			if err := r.AutoMigrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		repo = r

	case constants.StorageBackendSQLite:
		db, err := postgres.OpenSQLite(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			store.closers = append(store.closers, sqlDB.Close)
		}
		store.DB = db
		r := postgres.NewUserKeyRepository(db, string(constants.StorageBackendSQLite), log)
		if err := r.AutoMigrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		repo = r

	case constants.StorageBackendRedis:
		conn := redis.NewRedisConnection(&cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		store.closers = append(store.closers, conn.Close)
		repo = redis.NewUserKeyRepository(conn.GetClient(), cfg.Redis.KeyPrefix, log)

	case constants.StorageBackendVault:
		client, err := kms.NewVaultClient(cfg.Vault, log)
		if err != nil {
			return nil, err
		}
		repo = kms.NewVaultUserKeyRepository(client, cfg.Vault.MountPath, cfg.Vault.PathPrefix, log)

	default:
		return nil, errors.ErrInvalidRequest("unknown storage backend: " + string(cfg.Storage.Backend))
	}

	store.Repository = WithTimeout(repo, cfg.Storage.Timeout)
	log.Info(ctx, "User key store opened", logger.Fields{"backend": store.Backend})
	return store, nil
}

// WithTimeout bounds every repository call by timeout. A non-positive
// timeout returns repo unchanged.
func WithTimeout(repo repository.UserKeyRepository, timeout time.Duration) repository.UserKeyRepository {
	if timeout <= 0 {
		return repo
	}
	return &timeoutRepository{next: repo, timeout: timeout}
}

type timeoutRepository struct {
	next    repository.UserKeyRepository
	timeout time.Duration
}

func (r *timeoutRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Get(ctx, ownerID)
}

func (r *timeoutRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Put(ctx, ownerID, key)
}

func (r *timeoutRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.CreateIfAbsent(ctx, ownerID, key)
}

func (r *timeoutRepository) Delete(ctx context.Context, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Delete(ctx, ownerID)
}

func (r *timeoutRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Ping(ctx)
}
