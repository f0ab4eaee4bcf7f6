package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// RateLimitService enforces fixed-window point consumption per named
// policy (ip, user, api_key). Each policy is evaluated independently and
// the first failing one short-circuits. State lives in Redis when
// available so budgets hold across instances; otherwise a process-local
// window map is used. Backend errors degrade to permissive with a warning
// unless fail_closed is configured.
type RateLimitService struct {
	config *config.Config
	logger *logrus.Logger
	redis  *redis.Client

	mu      sync.Mutex
	windows map[string]*fixedWindow

	now func() time.Time
}

type fixedWindow struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// PolicyCheck names a policy and the identifier consuming a point from it.
type PolicyCheck struct {
	Policy     string
	Identifier string
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	if redisClient == nil {
		logger.Warn("Rate limiter running on in-process memory, budgets are not shared across instances")
	}
	return &RateLimitService{
		config:  cfg,
		logger:  logger,
		redis:   redisClient,
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// Allow consumes one point from the named policy for the identifier and
// reports whether the request is admitted.
func (s *RateLimitService) Allow(ctx context.Context, policyName, identifier string) (bool, *models.RateLimitInfo, error) {
	policy, ok := s.config.RateLimit.Policies[policyName]
	if !ok {
		return false, nil, fmt.Errorf("unknown rate limit policy %q", policyName)
	}

	blockDuration := policy.BlockDuration
	if blockDuration <= 0 {
		blockDuration = policy.Duration
	}

	if s.redis != nil {
		allowed, info, err := s.allowRedis(ctx, policyName, identifier, policy, blockDuration)
		if err == nil {
			return allowed, info, nil
		}
		if s.config.RateLimit.FailClosed {
			s.logger.WithError(err).Error("Rate limit backend error, failing closed")
			return false, &models.RateLimitInfo{
				Limit:      policy.Points,
				Remaining:  0,
				ResetTime:  s.now().Add(blockDuration).Unix(),
				RetryAfter: int64(blockDuration.Seconds()),
			}, nil
		}
		s.logger.WithError(err).Warn("Rate limit backend error, admitting request")
		return true, &models.RateLimitInfo{
			Limit:     policy.Points,
			Remaining: policy.Points - 1,
			ResetTime: s.now().Add(policy.Duration).Unix(),
		}, nil
	}

	allowed, info := s.allowMemory(policyName, identifier, policy, blockDuration)
	return allowed, info, nil
}

// AllowAll evaluates the given checks in order; the first policy that
// rejects reports its own retry-after and stops evaluation.
func (s *RateLimitService) AllowAll(ctx context.Context, checks ...PolicyCheck) (bool, *models.RateLimitInfo, error) {
	var last *models.RateLimitInfo
	for _, check := range checks {
		allowed, info, err := s.Allow(ctx, check.Policy, check.Identifier)
		if err != nil {
			return false, nil, err
		}
		if info != nil {
			last = info
		}
		if !allowed {
			return false, info, nil
		}
	}
	return true, last, nil
}

func (s *RateLimitService) allowRedis(ctx context.Context, policyName, identifier string, policy config.RateLimitPolicy, blockDuration time.Duration) (bool, *models.RateLimitInfo, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", policyName, identifier)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to consume rate limit point: %w", err)
	}

	if count == 1 {
		if err := s.redis.Expire(ctx, key, policy.Duration).Err(); err != nil {
			return false, nil, fmt.Errorf("failed to arm rate limit window: %w", err)
		}
	}

	if count > int64(policy.Points) {
		// First rejection extends the key lifetime to the block duration.
		if count == int64(policy.Points)+1 && blockDuration > policy.Duration {
			if err := s.redis.Expire(ctx, key, blockDuration).Err(); err != nil {
				s.logger.WithError(err).Warn("Failed to extend rate limit block")
			}
		}

		ttl, err := s.redis.PTTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = blockDuration
		}

		return false, &models.RateLimitInfo{
			Limit:      policy.Points,
			Remaining:  0,
			ResetTime:  s.now().Add(ttl).Unix(),
			RetryAfter: int64(ttl.Seconds()) + 1,
		}, nil
	}

	ttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = policy.Duration
	}

	return true, &models.RateLimitInfo{
		Limit:     policy.Points,
		Remaining: policy.Points - int(count),
		ResetTime: s.now().Add(ttl).Unix(),
	}, nil
}

func (s *RateLimitService) allowMemory(policyName, identifier string, policy config.RateLimitPolicy, blockDuration time.Duration) (bool, *models.RateLimitInfo) {
	key := fmt.Sprintf("%s:%s", policyName, identifier)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	window, ok := s.windows[key]
	if !ok {
		window = &fixedWindow{}
		s.windows[key] = window
	}

	if now.Before(window.blockedUntil) {
		retryAfter := window.blockedUntil.Sub(now)
		return false, &models.RateLimitInfo{
			Limit:      policy.Points,
			Remaining:  0,
			ResetTime:  window.blockedUntil.Unix(),
			RetryAfter: int64(retryAfter.Seconds()) + 1,
		}
	}

	if now.After(window.resetAt) {
		window.count = 0
		window.resetAt = now.Add(policy.Duration)
		window.blockedUntil = time.Time{}
	}

	window.count++
	if window.count > policy.Points {
		window.blockedUntil = now.Add(blockDuration)
		return false, &models.RateLimitInfo{
			Limit:      policy.Points,
			Remaining:  0,
			ResetTime:  window.blockedUntil.Unix(),
			RetryAfter: int64(blockDuration.Seconds()),
		}
	}

	return true, &models.RateLimitInfo{
		Limit:     policy.Points,
		Remaining: policy.Points - window.count,
		ResetTime: window.resetAt.Unix(),
	}
}

// Reset clears the window for an identifier. Used by tests and admin
// tooling; absence is not an error.
func (s *RateLimitService) Reset(ctx context.Context, policyName, identifier string) {
	if s.redis != nil {
		key := fmt.Sprintf("ratelimit:%s:%s", policyName, identifier)
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to reset rate limit window")
		}
		return
	}

	s.mu.Lock()
	delete(s.windows, fmt.Sprintf("%s:%s", policyName, identifier))
	s.mu.Unlock()
}
