package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// EventPublisher streams analytics events to an external bus. Optional;
// the Kafka implementation lives in internal/messaging.
type EventPublisher interface {
	Publish(ctx context.Context, event models.AnalyticsEvent) error
}

// EventSink persists batches of analytics events durably. Optional; the
// Postgres implementation lives in analytics_store.go.
type EventSink interface {
	InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error
}

// AnalyticsService records one event per gateway request attempt. Events
// are held in a bounded in-memory buffer (oldest evicted first) and, when
// configured, streamed to Kafka and flushed to Postgres in the background.
type AnalyticsService struct {
	config    *config.Config
	logger    *logrus.Logger
	publisher EventPublisher
	sink      EventSink

	mu      sync.RWMutex
	events  []models.AnalyticsEvent
	pending []models.AnalyticsEvent

	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

func NewAnalyticsService(cfg *config.Config, logger *logrus.Logger, publisher EventPublisher, sink EventSink) *AnalyticsService {
	return &AnalyticsService{
		config:    cfg,
		logger:    logger,
		publisher: publisher,
		sink:      sink,
		events:    make([]models.AnalyticsEvent, 0, cfg.Analytics.BufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Track appends an event, stamping id and timestamp. Retention is bounded
// by analytics.buffer_size to avoid unbounded growth.
func (s *AnalyticsService) Track(event models.AnalyticsEvent) {
	if !s.config.Analytics.Enabled {
		return
	}

	event.ID = uuid.New()
	event.Timestamp = s.now()

	s.mu.Lock()
	s.events = append(s.events, event)
	if max := s.config.Analytics.BufferSize; max > 0 && len(s.events) > max {
		s.events = s.events[len(s.events)-max:]
	}
	if s.sink != nil {
		s.pending = append(s.pending, event)
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"event":         event.Event,
		"endpoint":      event.Endpoint,
		"status_code":   event.StatusCode,
		"response_time": event.ResponseTime,
		"user_id":       event.UserID,
	}).Debug("Analytics event tracked")

	if s.publisher != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.WithError(err).Warn("Failed to publish analytics event")
			}
		}()
	}
}

// HashIP pseudonymizes a client address before it is recorded. Raw
// addresses never leave the request path.
func (s *AnalyticsService) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.config.Analytics.IPSalt + "|" + ip))
	return hex.EncodeToString(sum[:8])
}

// Metrics aggregates buffered events newer than the given range.
func (s *AnalyticsService) Metrics(timeRange time.Duration) models.AnalyticsMetrics {
	cutoff := s.now().Add(-timeRange)

	s.mu.RLock()
	recent := make([]models.AnalyticsEvent, 0, len(s.events))
	for _, event := range s.events {
		if event.Timestamp.After(cutoff) {
			recent = append(recent, event)
		}
	}
	s.mu.RUnlock()

	metrics := models.AnalyticsMetrics{
		TopEndpoints: []models.EndpointCount{},
		TopUsers:     []models.UserCount{},
	}
	if len(recent) == 0 {
		return metrics
	}

	latencies := make([]float64, 0, len(recent))
	endpointCounts := make(map[string]int)
	userCounts := make(map[string]int)
	errorCount := 0
	cacheHits := 0

	for _, event := range recent {
		metrics.TotalCost += event.Cost
		latencies = append(latencies, float64(event.ResponseTime))
		endpointCounts[event.Endpoint]++

		userID := event.UserID
		if userID == "" {
			userID = event.APIKey
		}
		if userID == "" {
			userID = "anonymous"
		}
		userCounts[userID]++

		if event.StatusCode >= 400 {
			errorCount++
		}
		if event.Event == "cache_hit" {
			cacheHits++
		}
	}

	metrics.TotalRequests = len(recent)
	metrics.ErrorRate = float64(errorCount) / float64(len(recent))
	metrics.CacheHitRate = float64(cacheHits) / float64(len(recent))
	metrics.AverageResponseTime = stat.Mean(latencies, nil)

	sort.Float64s(latencies)
	metrics.P95ResponseTime = stat.Quantile(0.95, stat.Empirical, latencies, nil)
	metrics.P99ResponseTime = stat.Quantile(0.99, stat.Empirical, latencies, nil)

	metrics.TopEndpoints = topEndpoints(endpointCounts, 10)
	metrics.TopUsers = topUsers(userCounts, 10)

	return metrics
}

// UserEvents returns the most recent events attributed to a user or API
// key, newest first.
func (s *AnalyticsService) UserEvents(userID string, limit int) []models.AnalyticsEvent {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.AnalyticsEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(matched) < limit; i-- {
		event := s.events[i]
		if event.UserID == userID || event.APIKey == userID {
			matched = append(matched, event)
		}
	}
	return matched
}

// Start runs the background flush loop for the durable sink. No-op when
// no sink is configured.
func (s *AnalyticsService) Start() {
	if s.sink == nil {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.Analytics.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.flush()
			case <-s.stop:
				s.flush()
				return
			}
		}
	}()
}

// Stop drains pending events and terminates the flush loop.
func (s *AnalyticsService) Stop() {
	close(s.stop)
	<-s.done
}

func (s *AnalyticsService) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.sink.InsertEvents(ctx, batch); err != nil {
		s.logger.WithError(err).WithField("count", len(batch)).Warn("Failed to flush analytics events")
		// Requeue so a transient sink outage does not lose the batch.
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		if max := s.config.Analytics.BufferSize; max > 0 && len(s.pending) > max {
			s.pending = s.pending[len(s.pending)-max:]
		}
		s.mu.Unlock()
	}
}

func topEndpoints(counts map[string]int, limit int) []models.EndpointCount {
	ranked := make([]models.EndpointCount, 0, len(counts))
	for endpoint, count := range counts {
		ranked = append(ranked, models.EndpointCount{Endpoint: endpoint, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Endpoint < ranked[j].Endpoint
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func topUsers(counts map[string]int, limit int) []models.UserCount {
	ranked := make([]models.UserCount, 0, len(counts))
	for userID, count := range counts {
		ranked = append(ranked, models.UserCount{UserID: userID, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
