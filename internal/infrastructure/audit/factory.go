package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/pkg/logger"
)

// NewPublisher assembles the event sinks. Events are always logged, Kafka is
// added when enabled, and a non-nil db keeps an audit table next to the keys.
func NewPublisher(ctx context.Context, cfg config.KafkaConfig, db *gorm.DB, log logger.Logger) (MultiPublisher, error) {
	publishers := MultiPublisher{NewLogPublisher(log)}

	if cfg.Enabled {
		kp, err := NewKafkaPublisher(cfg, log)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, kp)
	}

	if db != nil {
		gp, err := NewGormPublisher(ctx, db)
		if err != nil {
			_ = publishers.Close()
			return nil, err
		}
		publishers = append(publishers, gp)
	}
	return publishers, nil
}
