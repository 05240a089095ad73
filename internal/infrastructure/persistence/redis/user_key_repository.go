package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ repository.UserKeyRepository = (*UserKeyRepository)(nil)

// UserKeyRepository stores each keypair as one JSON value under prefix+ownerID.
// Single-key commands are atomic in Redis, and SETNX provides insert-if-absent.
type UserKeyRepository struct {
	client redis.UniversalClient
	prefix string
	log    logger.Logger
}

// NewUserKeyRepository creates a repository on client. An empty prefix uses the default namespace.
func NewUserKeyRepository(client redis.UniversalClient, prefix string, log logger.Logger) *UserKeyRepository {
	if prefix == "" {
		prefix = constants.RedisKeyPrefix
	}
	return &UserKeyRepository{
		client: client,
		prefix: prefix,
		log:    log.WithComponent("redis_user_key_repository"),
	}
}

func (r *UserKeyRepository) key(ownerID string) string {
	return r.prefix + ownerID
}

func (r *UserKeyRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	data, err := r.client.Get(ctx, r.key(ownerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrStorageBackend("redis", "get", err)
	}
	return decode(data)
}

func (r *UserKeyRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	data, err := encode(ownerID, key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(ownerID), data, 0).Err(); err != nil {
		return errors.ErrStorageBackend("redis", "put", err)
	}
	return nil
}

func (r *UserKeyRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	data, err := encode(ownerID, key)
	if err != nil {
		return nil, false, err
	}

	for {
		ok, err := r.client.SetNX(ctx, r.key(ownerID), data, 0).Result()
		if err != nil {
			return nil, false, errors.ErrStorageBackend("redis", "create", err)
		}
		if ok {
			stored, err := decode(data)
			return stored, true, err
		}

		stored, err := r.Get(ctx, ownerID)
		if err != nil {
			return nil, false, err
		}
		if stored != nil {
			return stored, false, nil
		}
		r.log.Debug(ctx, "Record vanished during create, retrying", logger.Fields{"owner_id": ownerID})
	}
}

func (r *UserKeyRepository) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, r.key(ownerID)).Err(); err != nil {
		return errors.ErrStorageBackend("redis", "delete", err)
	}
	return nil
}

func (r *UserKeyRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.ErrStorageBackend("redis", "ping", err)
	}
	return nil
}

func encode(ownerID string, key *models.UserKeyPair) ([]byte, error) {
	record := key.Clone()
	record.OwnerID = ownerID
	data, err := json.Marshal(record)
	if err != nil {
		return nil, errors.ErrInternal("failed to encode key record").WithCause(err)
	}
	return data, nil
}

func decode(data []byte) (*models.UserKeyPair, error) {
	var key models.UserKeyPair
	if err := json.Unmarshal(data, &key); err != nil {
		// The payload is not echoed: it holds sealed key material.
		return nil, errors.ErrStorage("stored key record is corrupt")
	}
	return &key, nil
}
