package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/errors"
)

var _ service.KeyEventPublisher = (*GormPublisher)(nil)

// GormPublisher appends key events to the key_events table next to the keys.
type GormPublisher struct {
	db *gorm.DB
}

// NewGormPublisher creates a GormPublisher, creating the table if needed.
func NewGormPublisher(ctx context.Context, db *gorm.DB) (*GormPublisher, error) {
	if err := db.WithContext(ctx).AutoMigrate(&models.KeyEvent{}); err != nil {
		return nil, errors.ErrStorage("failed to migrate key_events").WithCause(err)
	}
	return &GormPublisher{db: db}, nil
}

// Publish saves event.
func (p *GormPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	if err := p.db.WithContext(ctx).Create(event).Error; err != nil {
		return errors.ErrStorage("failed to record key event").WithCause(err)
	}
	return nil
}

// Recent returns the latest events for ownerID, newest first.
func (p *GormPublisher) Recent(ctx context.Context, ownerID string, limit int) ([]models.KeyEvent, error) {
	var events []models.KeyEvent
	err := p.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.ErrStorage("failed to read key events").WithCause(err)
	}
	return events, nil
}

// Close is a no-op; the database handle belongs to the store.
func (p *GormPublisher) Close() error { return nil }
