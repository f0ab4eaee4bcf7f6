package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinante-digital/gateway/internal/config"
)

func newTestRateLimit(t *testing.T, policies map[string]config.RateLimitPolicy) *RateLimitService {
	t.Helper()
	cfg := testConfig(t)
	if policies != nil {
		cfg.RateLimit.Policies = policies
	}
	return NewRateLimitService(cfg, testLogger(), nil)
}

func TestRateLimitService_FixedWindowBudget(t *testing.T) {
	svc := newTestRateLimit(t, map[string]config.RateLimitPolicy{
		"ip": {Points: 3, Duration: time.Minute, BlockDuration: 2 * time.Minute},
	})
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		allowed, info, err := svc.Allow(ctx, "ip", "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	// Fourth request in the same window is rejected and blocked.
	allowed, info, err := svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, int64(120), info.RetryAfter)

	// Another identifier has its own budget.
	allowed, _, err = svc.Allow(ctx, "ip", "198.51.100.9")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitService_BlockExpires(t *testing.T) {
	svc := newTestRateLimit(t, map[string]config.RateLimitPolicy{
		"ip": {Points: 1, Duration: time.Minute, BlockDuration: 2 * time.Minute},
	})
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	allowed, _, err := svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Still blocked after the window but inside the block duration.
	svc.now = func() time.Time { return base.Add(90 * time.Second) }
	allowed, info, err := svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Positive(t, info.RetryAfter)

	// Block elapsed: a fresh window opens.
	svc.now = func() time.Time { return base.Add(3 * time.Minute) }
	allowed, _, err = svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitService_UnknownPolicy(t *testing.T) {
	svc := newTestRateLimit(t, nil)

	_, _, err := svc.Allow(context.Background(), "nope", "id")
	assert.Error(t, err)
}

func TestRateLimitService_AllowAllShortCircuits(t *testing.T) {
	svc := newTestRateLimit(t, map[string]config.RateLimitPolicy{
		"user":    {Points: 1, Duration: time.Hour, BlockDuration: time.Hour},
		"api_key": {Points: 10, Duration: time.Minute, BlockDuration: time.Minute},
	})
	ctx := context.Background()

	allowed, _, err := svc.AllowAll(ctx,
		PolicyCheck{Policy: "user", Identifier: "u1"},
		PolicyCheck{Policy: "api_key", Identifier: "k1"},
	)
	require.NoError(t, err)
	assert.True(t, allowed)

	// The user budget is exhausted; the api_key budget must not be
	// charged for the rejected request.
	allowed, info, err := svc.AllowAll(ctx,
		PolicyCheck{Policy: "user", Identifier: "u1"},
		PolicyCheck{Policy: "api_key", Identifier: "k1"},
	)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 1, info.Limit)

	allowed, info, err = svc.Allow(ctx, "api_key", "k1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 8, info.Remaining)
}

func TestRateLimitService_Reset(t *testing.T) {
	svc := newTestRateLimit(t, map[string]config.RateLimitPolicy{
		"ip": {Points: 1, Duration: time.Minute, BlockDuration: time.Minute},
	})
	ctx := context.Background()

	allowed, _, err := svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, allowed)

	svc.Reset(ctx, "ip", "203.0.113.7")

	allowed, _, err = svc.Allow(ctx, "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)
}
