// Package memory provides an in-process UserKeyRepository for single-instance
// deployments and tests. Records are lost on restart.
package memory

import (
	"context"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ repository.UserKeyRepository = (*UserKeyRepository)(nil)

// UserKeyRepository keeps keypairs in a go-cache instance without expiry.
// go-cache serializes access internally and its Add is an atomic
// insert-if-absent, which is all the linearizability the contract needs.
type UserKeyRepository struct {
	store *cache.Cache
	log   logger.Logger
}

// NewUserKeyRepository creates an empty repository.
func NewUserKeyRepository(log logger.Logger) *UserKeyRepository {
	return &UserKeyRepository{
		store: cache.New(cache.NoExpiration, 0),
		log:   log.WithComponent("memory_user_key_repository"),
	}
}

func (r *UserKeyRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrStorageBackend("memory", "get", err)
	}
	item, found := r.store.Get(ownerID)
	if !found {
		return nil, nil
	}
	return item.(*models.UserKeyPair).Clone(), nil
}

func (r *UserKeyRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrStorageBackend("memory", "put", err)
	}
	r.store.Set(ownerID, stamped(ownerID, key), cache.NoExpiration)
	return nil
}

func (r *UserKeyRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	candidate := stamped(ownerID, key)
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, errors.ErrStorageBackend("memory", "create", err)
		}
		if err := r.store.Add(ownerID, candidate, cache.NoExpiration); err == nil {
			return candidate.Clone(), true, nil
		}
		if item, found := r.store.Get(ownerID); found {
			return item.(*models.UserKeyPair).Clone(), false, nil
		}
		// Deleted between Add and Get; try again.
		r.log.Debug(ctx, "Record vanished during create, retrying", logger.Fields{"owner_id": ownerID})
	}
}

func (r *UserKeyRepository) Delete(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrStorageBackend("memory", "delete", err)
	}
	r.store.Delete(ownerID)
	return nil
}

func (r *UserKeyRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Count reports how many owners currently hold a key.
func (r *UserKeyRepository) Count() int {
	return r.store.ItemCount()
}

func stamped(ownerID string, key *models.UserKeyPair) *models.UserKeyPair {
	c := key.Clone()
	c.OwnerID = ownerID
	return c
}
