package kms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ repository.UserKeyRepository = (*VaultUserKeyRepository)(nil)

// recordField is the single KV field holding the JSON encoded keypair.
const recordField = "record"

// VaultUserKeyRepository keeps one KV v2 secret per owner under
// <mount>/data/<prefix>/<owner>. Check-and-set with cas=0 is the
// insert-if-absent primitive; Delete removes the metadata so every version
// goes and cas=0 succeeds again afterwards.
type VaultUserKeyRepository struct {
	client *vault.Client
	kv     *vault.KVv2
	prefix string
	log    logger.Logger
}

// NewVaultUserKeyRepository creates a repository on the KV v2 engine mounted at mount.
func NewVaultUserKeyRepository(client *vault.Client, mount, prefix string, log logger.Logger) *VaultUserKeyRepository {
	if mount == "" {
		mount = constants.DefaultVaultMount
	}
	if prefix == "" {
		prefix = constants.DefaultVaultPathPrefix
	}
	return &VaultUserKeyRepository{
		client: client,
		kv:     client.KVv2(mount),
		prefix: strings.Trim(prefix, "/"),
		log:    log.WithComponent("vault_user_key_repository"),
	}
}

func (r *VaultUserKeyRepository) path(ownerID string) string {
	return r.prefix + "/" + url.PathEscape(ownerID)
}

func (r *VaultUserKeyRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	secret, err := r.kv.Get(ctx, r.path(ownerID))
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrStorageBackend("vault", "get", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data[recordField].(string)
	if !ok {
		return nil, errors.ErrStorage("stored key record is corrupt")
	}
	var key models.UserKeyPair
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, errors.ErrStorage("stored key record is corrupt")
	}
	return &key, nil
}

func (r *VaultUserKeyRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	data, err := secretData(ownerID, key)
	if err != nil {
		return err
	}
	if _, err := r.kv.Put(ctx, r.path(ownerID), data); err != nil {
		return errors.ErrStorageBackend("vault", "put", err)
	}
	return nil
}

func (r *VaultUserKeyRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	data, err := secretData(ownerID, key)
	if err != nil {
		return nil, false, err
	}

	for {
		_, err := r.kv.Put(ctx, r.path(ownerID), data, vault.WithCheckAndSet(0))
		if err == nil {
			stored := key.Clone()
			stored.OwnerID = ownerID
			return stored, true, nil
		}
		if !isCASConflict(err) {
			return nil, false, errors.ErrStorageBackend("vault", "create", err)
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

func (r *VaultUserKeyRepository) Delete(ctx context.Context, ownerID string) error {
	if err := r.kv.DeleteMetadata(ctx, r.path(ownerID)); err != nil {
		return errors.ErrStorageBackend("vault", "delete", err)
	}
	return nil
}

func (r *VaultUserKeyRepository) Ping(ctx context.Context) error {
	health, err := r.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return errors.ErrStorageBackend("vault", "ping", err)
	}
	if health.Sealed {
		return errors.ErrStorage("vault is sealed")
	}
	return nil
}

func secretData(ownerID string, key *models.UserKeyPair) (map[string]interface{}, error) {
	record := key.Clone()
	record.OwnerID = ownerID
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, errors.ErrInternal("failed to encode key record").WithCause(err)
	}
	return map[string]interface{}{recordField: string(raw)}, nil
}

func isCASConflict(err error) bool {
	var respErr *vault.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}
