package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/keystore/pkg/constants"
)

// KeyState is the per-owner lifecycle state.
// KeyState 是每个所有者的密钥生命周期状态。
type KeyState string

const (
	// KeyStateAbsent means no keypair is stored for the owner.
	KeyStateAbsent KeyState = "NO_KEY"
	// KeyStatePresent means exactly one keypair is stored for the owner.
	KeyStatePresent KeyState = "HAS_KEY"
)

// KeyEvent describes a lifecycle transition or a refused access attempt.
// It carries the fingerprint only, never key material.
// KeyEvent 描述生命周期转换或被拒绝的访问尝试，只携带指纹，从不携带密钥材料。
type KeyEvent struct {
	ID          string                 `json:"id" gorm:"primaryKey;size:36"`
	Type        constants.KeyEventType `json:"type" gorm:"column:event_type;size:64;index"`
	OwnerID     string                 `json:"owner_id" gorm:"size:255;index"`
	RequesterID string                 `json:"requester_id,omitempty" gorm:"size:255"`
	Fingerprint string                 `json:"fingerprint,omitempty" gorm:"size:128"`
	From        KeyState               `json:"from,omitempty" gorm:"column:from_state;size:16"`
	To          KeyState               `json:"to,omitempty" gorm:"column:to_state;size:16"`
	Reason      string                 `json:"reason,omitempty" gorm:"size:255"`
	Timestamp   time.Time              `json:"timestamp" gorm:"column:occurred_at;index"`
}

// TableName returns the table name for key events.
func (KeyEvent) TableName() string {
	return "key_events"
}

// NewKeyEvent stamps a new event with an id and the current time.
func NewKeyEvent(eventType constants.KeyEventType, ownerID, requesterID string) *KeyEvent {
	return &KeyEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		OwnerID:     ownerID,
		RequesterID: requesterID,
		Timestamp:   time.Now().UTC(),
	}
}

// WithTransition records the state change the event stands for.
func (e *KeyEvent) WithTransition(from, to KeyState) *KeyEvent {
	e.From = from
	e.To = to
	return e
}

// WithFingerprint records which key the event concerns.
func (e *KeyEvent) WithFingerprint(fp string) *KeyEvent {
	e.Fingerprint = fp
	return e
}

// WithReason records why access was refused.
func (e *KeyEvent) WithReason(reason string) *KeyEvent {
	e.Reason = reason
	return e
}
