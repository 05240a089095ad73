package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/keystore/internal/domain/models"
)

// MockKeyGenerator is a mock implementation of KeyGenerator
type MockKeyGenerator struct {
	mock.Mock
}

func (m *MockKeyGenerator) Generate(ctx context.Context, bits int) (*models.UserKeyPair, error) {
	args := m.Called(ctx, bits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserKeyPair), args.Error(1)
}
