package audit

import (
	"context"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ service.KeyEventPublisher = (*LogPublisher)(nil)

// LogPublisher writes key events to the structured log. It is the sink used
// when Kafka is disabled.
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.WithComponent("key_events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	p.logger.Info(ctx, "Key event", logger.Fields{
		"event_id":     event.ID,
		"type":         event.Type,
		"owner_id":     event.OwnerID,
		"requester_id": event.RequesterID,
		"fingerprint":  event.Fingerprint,
		"from":         event.From,
		"to":           event.To,
		"reason":       event.Reason,
	})
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// MultiPublisher fans an event out to several sinks. Every sink is tried;
// the first error is returned.
type MultiPublisher []service.KeyEventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiPublisher) Close() error {
	var firstErr error
	for _, p := range m {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
