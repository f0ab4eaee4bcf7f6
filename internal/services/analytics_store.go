package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/pkg/models"
)

const analyticsSchema = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id UUID PRIMARY KEY,
	event TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	user_id TEXT,
	api_key TEXT,
	endpoint TEXT NOT NULL,
	method TEXT NOT NULL,
	status_code INT NOT NULL,
	response_time_ms BIGINT NOT NULL,
	cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	ip TEXT,
	metadata JSONB
)`

var analyticsColumns = []string{
	"id", "event", "occurred_at", "user_id", "api_key", "endpoint",
	"method", "status_code", "response_time_ms", "cost", "ip", "metadata",
}

// pgPool is the subset of pgxpool.Pool the store uses, narrowed so tests
// can substitute pgxmock.
type pgPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// AnalyticsStore is the durable Postgres sink behind the analytics flush
// loop.
type AnalyticsStore struct {
	pool   pgPool
	logger *logrus.Logger
}

func NewAnalyticsStore(pool pgPool, logger *logrus.Logger) *AnalyticsStore {
	return &AnalyticsStore{pool: pool, logger: logger}
}

// EnsureSchema creates the events table on first start.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, analyticsSchema); err != nil {
		return fmt.Errorf("failed to create analytics schema: %w", err)
	}
	return nil
}

// InsertEvents bulk-copies a batch of events.
func (s *AnalyticsStore) InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, event := range events {
		var metadata []byte
		if len(event.Metadata) > 0 {
			data, err := json.Marshal(event.Metadata)
			if err != nil {
				s.logger.WithError(err).Warn("Dropping unserializable event metadata")
			} else {
				metadata = data
			}
		}
		rows = append(rows, []any{
			event.ID, event.Event, event.Timestamp, event.UserID,
			event.APIKey, event.Endpoint, event.Method, event.StatusCode,
			event.ResponseTime, event.Cost, event.IP, metadata,
		})
	}

	copied, err := s.pool.CopyFrom(ctx, pgx.Identifier{"analytics_events"}, analyticsColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy analytics events: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copied %d of %d analytics events", copied, len(rows))
	}
	return nil
}
