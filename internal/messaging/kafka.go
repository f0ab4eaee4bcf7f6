package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// AnalyticsPublisher streams gateway analytics events to Kafka so external
// consumers (billing, dashboards) can process them off the hot path.
type AnalyticsPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewAnalyticsPublisher(cfg *config.Config, logger *logrus.Logger) *AnalyticsPublisher {
	return &AnalyticsPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topics.AnalyticsEvents,
			Balancer:     &kafka.Hash{}, // Key by endpoint so per-endpoint ordering holds
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}
}

func (p *AnalyticsPublisher) Publish(ctx context.Context, event models.AnalyticsEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Endpoint),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish analytics event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event":    event.Event,
		"endpoint": event.Endpoint,
	}).Debug("Analytics event published")

	return nil
}

func (p *AnalyticsPublisher) Close() error {
	return p.writer.Close()
}
