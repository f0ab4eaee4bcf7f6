package services

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/database"
	"github.com/fascinante-digital/gateway/internal/messaging"
)

// Services wires every gateway service once at startup. Handlers receive
// this struct by reference; nothing here is a package-level singleton.
type Services struct {
	Token     *TokenService
	Auth      *AuthService
	OAuth     *OAuthService
	Cache     *CacheService
	RateLimit *RateLimitService
	Analytics *AnalyticsService
	Health    *HealthService
	Metrics   *Metrics

	logger    *logrus.Logger
	publisher EventPublisher
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, registerer prometheus.Registerer) (*Services, error) {
	tokens, err := NewTokenService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	cache := NewCacheService(cfg, logger, db.Redis)
	rateLimit := NewRateLimitService(cfg, logger, db.Redis)
	auth := NewAuthService(cfg, logger, tokens)
	oauth := NewOAuthService(cfg, logger, tokens, cache)
	health := NewHealthService(logger, db.Redis, db.PG)

	var publisher EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = messaging.NewAnalyticsPublisher(cfg, logger)
		logger.Info("Analytics events will be streamed to Kafka")
	}

	var sink EventSink
	if db.PG != nil {
		store := NewAnalyticsStore(db.PG, logger)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to prepare analytics schema: %w", err)
		}
		sink = store
		logger.Info("Analytics events will be flushed to Postgres")
	}

	analytics := NewAnalyticsService(cfg, logger, publisher, sink)
	analytics.Start()

	return &Services{
		Token:     tokens,
		Auth:      auth,
		OAuth:     oauth,
		Cache:     cache,
		RateLimit: rateLimit,
		Analytics: analytics,
		Health:    health,
		Metrics:   NewMetrics(registerer),
		logger:    logger,
		publisher: publisher,
	}, nil
}

// Shutdown stops background workers and flushes the event stream.
func (s *Services) Shutdown() {
	s.Analytics.Stop()

	if closer, ok := s.publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close analytics publisher")
		}
	}
}
