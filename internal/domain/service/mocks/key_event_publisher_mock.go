package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/keystore/internal/domain/models"
)

// MockKeyEventPublisher is a mock implementation of KeyEventPublisher
type MockKeyEventPublisher struct {
	mock.Mock
}

func (m *MockKeyEventPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockKeyEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
