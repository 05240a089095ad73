package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ repository.UserKeyRepository = (*UserKeyRepository)(nil)

// UserKeyRepository is a gorm implementation of the UserKeyRepository interface.
// owner_id is the primary key, so the database enforces one record per owner
// and INSERT ... ON CONFLICT DO NOTHING is the insert-if-absent primitive.
type UserKeyRepository struct {
	db      *gorm.DB
	backend string
	log     logger.Logger
}

// NewUserKeyRepository creates a new UserKeyRepository. backend names the
// dialect in errors and logs ("postgres" or "sqlite").
func NewUserKeyRepository(db *gorm.DB, backend string, log logger.Logger) *UserKeyRepository {
	return &UserKeyRepository{
		db:      db,
		backend: backend,
		log:     log.WithComponent(backend + "_user_key_repository"),
	}
}

// AutoMigrate creates or updates the user_keys table.
func (r *UserKeyRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.UserKeyPair{}); err != nil {
		return errors.ErrStorageBackend(r.backend, "migrate", err)
	}
	return nil
}

// Get retrieves the keypair for ownerID, or nil when none exists.
func (r *UserKeyRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	var key models.UserKeyPair
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrStorageBackend(r.backend, "get", err)
	}
	return &key, nil
}

// Put upserts the whole record for ownerID.
func (r *UserKeyRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	record := key.Clone()
	record.OwnerID = ownerID
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return errors.ErrStorageBackend(r.backend, "put", err)
	}
	return nil
}

// CreateIfAbsent inserts key unless ownerID already has a record, then reads back the winner.
func (r *UserKeyRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	record := key.Clone()
	record.OwnerID = ownerID

	for {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(record)
		if res.Error != nil {
			return nil, false, errors.ErrStorageBackend(r.backend, "create", res.Error)
		}
		if res.RowsAffected == 1 {
			return record.Clone(), true, nil
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

// Delete removes the record for ownerID; a missing record is not an error.
func (r *UserKeyRepository) Delete(ctx context.Context, ownerID string) error {
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&models.UserKeyPair{}).Error
	if err != nil {
		return errors.ErrStorageBackend(r.backend, "delete", err)
	}
	return nil
}

// Ping checks the underlying connection.
func (r *UserKeyRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return errors.ErrStorageBackend(r.backend, "ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.ErrStorageBackend(r.backend, "ping", err)
	}
	return nil
}
