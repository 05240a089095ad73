package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/keystore/internal/domain/models"
)

// MockUserKeyRepository is a mock implementation of UserKeyRepository
type MockUserKeyRepository struct {
	mock.Mock
}

func (m *MockUserKeyRepository) Get(ctx context.Context, ownerID string) (*models.UserKeyPair, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserKeyPair), args.Error(1)
}

func (m *MockUserKeyRepository) Put(ctx context.Context, ownerID string, key *models.UserKeyPair) error {
	args := m.Called(ctx, ownerID, key)
	return args.Error(0)
}

func (m *MockUserKeyRepository) CreateIfAbsent(ctx context.Context, ownerID string, key *models.UserKeyPair) (*models.UserKeyPair, bool, error) {
	args := m.Called(ctx, ownerID, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.UserKeyPair), args.Bool(1), args.Error(2)
}

func (m *MockUserKeyRepository) Delete(ctx context.Context, ownerID string) error {
	args := m.Called(ctx, ownerID)
	return args.Error(0)
}

func (m *MockUserKeyRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
