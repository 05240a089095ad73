package repository

import (
	"context"

	"github.com/turtacn/keystore/internal/domain/models"
)

// UserKeyRepository persists exactly one keypair per owner.
//
// Implementations must make operations on the same owner linearizable.
// CreateIfAbsent is the serialization point for first-access races: when two
// callers race, exactly one record is stored and both observe it.
type UserKeyRepository interface {
	// Get returns the stored keypair, or (nil, nil) when the owner has none.
	Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error)

	// Put stores key for ownerID, replacing any existing record as a whole.
	Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error

	// CreateIfAbsent stores key unless a record already exists. It returns the
	// record that is stored after the call and whether this call created it.
	CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (stored *models.UserKeyPair, created bool, err error)

	// Delete removes the owner's record. Deleting a missing record is not an error.
	Delete(ctx context.Context, ownerID string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
