package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
)

// CacheService is the pluggable key-value store used for proxied provider
// responses, OAuth authorization-code staging and the refresh-token
// denylist. Redis is the durable backend; when it is absent or erroring
// the service degrades to a process-local map with wall-clock expiry
// checked on read. Backend errors never fail the enclosing request, they
// degrade to cache-miss behavior.
type CacheService struct {
	config *config.Config
	logger *logrus.Logger
	redis  *redis.Client

	mu     sync.RWMutex
	memory map[string]memoryEntry

	now func() time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewCacheService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *CacheService {
	if redisClient == nil {
		logger.Warn("Cache store running on in-process memory, entries are not shared across instances")
	}
	return &CacheService{
		config: cfg,
		logger: logger,
		redis:  redisClient,
		memory: make(map[string]memoryEntry),
		now:    time.Now,
	}
}

// Key builds a deterministic cache key from the logical endpoint and its
// parameters. encoding/json marshals map keys in sorted order, so
// semantically identical parameter sets produce identical keys regardless
// of insertion order.
func (s *CacheService) Key(endpoint string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// Unmarshalable params cannot be cached deterministically; fall
		// back to a key no other request will produce.
		canonical = []byte(fmt.Sprintf("uncacheable:%d", s.now().UnixNano()))
	}
	sum := sha256.Sum256(append([]byte(endpoint+"|"), canonical...))
	return fmt.Sprintf("%s:%s:%x", s.config.Cache.KeyPrefix, endpoint, sum)
}

// Get returns the raw cached payload, or false on miss. Redis errors are
// logged and reported as misses.
func (s *CacheService) Get(ctx context.Context, key string) ([]byte, bool) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, false
		}
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache get failed, treating as miss")
			return nil, false
		}
		return data, true
	}

	s.mu.RLock()
	entry, ok := s.memory[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expires) {
		s.mu.Lock()
		delete(s.memory, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

// GetJSON unmarshals a cached entry into dest, reporting a miss when the
// entry is absent or unreadable.
func (s *CacheService) GetJSON(ctx context.Context, key string, dest any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Corrupt cache entry, treating as miss")
		return false
	}
	return true
}

// Set stores value as JSON with the given TTL. Failures are logged and
// swallowed; a request never fails because its result could not be cached.
func (s *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.config.Cache.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to serialize cache entry")
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache set failed")
		}
		return
	}

	s.mu.Lock()
	s.memory[key] = memoryEntry{data: data, expires: s.now().Add(ttl)}
	s.mu.Unlock()
}

// Add stores value only when the key is absent and reports whether this
// call claimed it. Backend errors count as a failed claim. This is the
// reservation primitive behind refresh-token rotation: concurrent
// replays of the same jti race on the claim and only one wins.
func (s *CacheService) Add(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.config.Cache.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to serialize cache entry")
		return false
	}

	if s.redis != nil {
		claimed, err := s.redis.SetNX(ctx, key, data, ttl).Result()
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache add failed")
			return false
		}
		return claimed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.memory[key]; ok && s.now().Before(entry.expires) {
		return false
	}
	s.memory[key] = memoryEntry{data: data, expires: s.now().Add(ttl)}
	return true
}

// GetDel atomically reads and removes an entry. This is the single-use
// primitive behind authorization-code consumption.
func (s *CacheService) GetDel(ctx context.Context, key string) ([]byte, bool) {
	if s.redis != nil {
		data, err := s.redis.GetDel(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, false
		}
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache getdel failed, treating as miss")
			return nil, false
		}
		return data, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memory[key]
	if !ok {
		return nil, false
	}
	delete(s.memory, key)
	if s.now().After(entry.expires) {
		return nil, false
	}
	return entry.data, true
}

// Delete removes an entry. Absence is not an error.
func (s *CacheService) Delete(ctx context.Context, key string) {
	if s.redis != nil {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache delete failed")
		}
		return
	}

	s.mu.Lock()
	delete(s.memory, key)
	s.mu.Unlock()
}
