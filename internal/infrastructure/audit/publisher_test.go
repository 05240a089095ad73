package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/service/mocks"
	"github.com/turtacn/keystore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/logger"
)

func TestGormPublisher_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	db, err := postgres.OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"), logger.NewNoopLogger())
	require.NoError(t, err)

	p, err := NewGormPublisher(ctx, db)
	require.NoError(t, err)

	first := generatedEvent()
	first.Timestamp = time.Now().Add(-time.Minute).UTC()
	second := models.NewKeyEvent(constants.KeyEventDeleted, "bob", "bob").
		WithTransition(models.KeyStatePresent, models.KeyStateAbsent)
	other := models.NewKeyEvent(constants.KeyEventAccessDenied, "alice", "bob").WithReason("forbidden")

	for _, e := range []*models.KeyEvent{first, second, other} {
		require.NoError(t, p.Publish(ctx, e))
	}

	events, err := p.Recent(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, models.KeyStateAbsent, events[0].To)
	assert.Equal(t, first.ID, events[1].ID)
	assert.Equal(t, "SHA256:abc", events[1].Fingerprint)

	assert.Error(t, p.Publish(ctx, first), "duplicate ids are rejected")
	assert.NoError(t, p.Close())
}

func TestMultiPublisher(t *testing.T) {
	ok := &mocks.MockKeyEventPublisher{}
	failing := &mocks.MockKeyEventPublisher{}
	event := generatedEvent()

	ok.On("Publish", mock.Anything, event).Return(nil)
	ok.On("Close").Return(nil)
	failing.On("Publish", mock.Anything, event).Return(assert.AnError)
	failing.On("Close").Return(nil)

	multi := MultiPublisher{failing, NewLogPublisher(logger.NewNoopLogger()), ok}
	assert.ErrorIs(t, multi.Publish(context.Background(), event), assert.AnError)
	assert.NoError(t, multi.Close())

	ok.AssertExpectations(t)
	failing.AssertExpectations(t)
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoopLogger()

	logOnly, err := NewPublisher(ctx, config.KafkaConfig{}, nil, log)
	require.NoError(t, err)
	assert.Len(t, logOnly, 1)

	db, err := postgres.OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"), log)
	require.NoError(t, err)
	withTable, err := NewPublisher(ctx, config.KafkaConfig{}, db, log)
	require.NoError(t, err)
	require.Len(t, withTable, 2)
	assert.IsType(t, &GormPublisher{}, withTable[1])

	withKafka, err := NewPublisher(ctx, config.KafkaConfig{Enabled: true, Brokers: []string{"127.0.0.1:9092"}}, nil, log)
	require.NoError(t, err)
	require.Len(t, withKafka, 2)
	assert.IsType(t, &KafkaPublisher{}, withKafka[1])
	assert.NoError(t, withKafka.Close())

	_, err = NewPublisher(ctx, config.KafkaConfig{Enabled: true}, nil, log)
	assert.Error(t, err)
}
