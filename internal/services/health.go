package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/pkg/models"
)

// HealthService reports component health. Redis and Postgres are both
// optional backends, so an absent handle reports as degraded rather than
// unhealthy: the gateway keeps serving on its in-process fallbacks.
type HealthService struct {
	logger *logrus.Logger
	redis  *redis.Client
	pg     *pgxpool.Pool
}

func NewHealthService(logger *logrus.Logger, redisClient *redis.Client, pg *pgxpool.Pool) *HealthService {
	return &HealthService{
		logger: logger,
		redis:  redisClient,
		pg:     pg,
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) models.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	degraded := false

	if s.redis == nil {
		components["redis"] = "not configured"
		degraded = true
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.WithError(err).Warn("Redis health check failed")
		components["redis"] = "unreachable"
		degraded = true
	} else {
		components["redis"] = "ok"
	}

	if s.pg == nil {
		components["postgres"] = "not configured"
	} else if err := s.pg.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Postgres health check failed")
		components["postgres"] = "unreachable"
		degraded = true
	} else {
		components["postgres"] = "ok"
	}

	status := "healthy"
	if degraded {
		status = "degraded"
	}

	return models.HealthStatus{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
}
