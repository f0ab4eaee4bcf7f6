package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/pkg/models"
)

const defaultUpstreamTimeout = 30 * time.Second

// Request describes one proxied call entering the pipeline. Call performs
// the upstream request and reports the payload plus the provider-reported
// cost, if any. Cacheable, when set, decides per payload whether the
// result may be stored; providers that deliver error envelopes over HTTP
// 200 use it to keep failures out of the cache.
type Request struct {
	Endpoint  string
	Method    string
	Params    map[string]any
	TTL       time.Duration
	Identity  *models.AuthContext
	ClientIP  string
	UserAgent string
	Call      func(ctx context.Context) (any, float64, error)
	Cacheable func(payload any) bool
}

// Result is the pipeline outcome handlers translate into a response.
// CacheStatus and Duration feed the X-Cache and X-Response-Time headers.
type Result struct {
	Payload     any
	CacheStatus string
	Duration    time.Duration
	RateLimit   *models.RateLimitInfo
}

// Pipeline runs every proxied request through the same sequence: cache
// lookup, rate limiting on a miss, the upstream call under a deadline,
// caching of successful payloads, and analytics for every attempt. A
// cache hit skips rate limiting, so cached traffic never burns budget.
type Pipeline struct {
	config    *config.Config
	logger    *logrus.Logger
	cache     *services.CacheService
	limiter   *services.RateLimitService
	analytics *services.AnalyticsService
	metrics   *services.Metrics
	timeout   time.Duration
	now       func() time.Time
}

func NewPipeline(cfg *config.Config, logger *logrus.Logger, svc *services.Services) *Pipeline {
	return &Pipeline{
		config:    cfg,
		logger:    logger,
		cache:     svc.Cache,
		limiter:   svc.RateLimit,
		analytics: svc.Analytics,
		metrics:   svc.Metrics,
		timeout:   defaultUpstreamTimeout,
		now:       time.Now,
	}
}

// Execute runs one request through the pipeline. Rate-limit rejections
// return *RateLimitError and upstream failures *UpstreamError; anything
// else is an internal fault.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	key := p.cache.Key(req.Endpoint, req.Params)

	var cached json.RawMessage
	if p.cache.GetJSON(ctx, key, &cached) {
		duration := p.now().Sub(start)
		p.metrics.CacheEvents.WithLabelValues(req.Endpoint, "hit").Inc()
		p.metrics.RequestsTotal.WithLabelValues(req.Endpoint, req.Method, "200").Inc()
		p.track(req, "cache_hit", 200, duration, 0, nil)
		return &Result{Payload: cached, CacheStatus: "HIT", Duration: duration}, nil
	}
	p.metrics.CacheEvents.WithLabelValues(req.Endpoint, "miss").Inc()

	info, err := p.consumeBudgets(ctx, req, start)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, cost, err := req.Call(callCtx)
	duration := p.now().Sub(start)
	p.metrics.UpstreamLatency.WithLabelValues(req.Endpoint).Observe(duration.Seconds())

	if err != nil {
		upstreamErr, ok := err.(*UpstreamError)
		if !ok {
			upstreamErr = &UpstreamError{Endpoint: req.Endpoint, StatusCode: 502, Err: err}
		}
		p.metrics.RequestsTotal.WithLabelValues(req.Endpoint, req.Method, statusLabel(upstreamErr.StatusCode)).Inc()
		p.track(req, "upstream_error", upstreamErr.StatusCode, duration, 0, nil)
		p.logger.WithError(err).WithField("endpoint", req.Endpoint).Warn("Upstream call failed")
		return nil, upstreamErr
	}

	// Only successful payloads are cached; errors must stay retryable.
	if req.Cacheable == nil || req.Cacheable(payload) {
		p.cache.Set(ctx, key, payload, req.TTL)
	}

	if cost > 0 {
		p.metrics.UpstreamCost.WithLabelValues(req.Endpoint).Add(cost)
	}
	p.metrics.RequestsTotal.WithLabelValues(req.Endpoint, req.Method, "200").Inc()
	p.track(req, "api_request", 200, duration, cost, nil)

	return &Result{Payload: payload, CacheStatus: "MISS", Duration: duration, RateLimit: info}, nil
}

// consumeBudgets charges the caller's policies for one request. Cached
// hits never reach this point.
func (p *Pipeline) consumeBudgets(ctx context.Context, req Request, start time.Time) (*models.RateLimitInfo, error) {
	var last *models.RateLimitInfo
	for _, check := range identityChecks(req.Identity) {
		allowed, info, err := p.limiter.Allow(ctx, check.Policy, check.Identifier)
		if err != nil {
			return nil, err
		}
		if info != nil {
			last = info
		}
		if !allowed {
			p.metrics.RateLimited.WithLabelValues(check.Policy).Inc()
			p.metrics.RequestsTotal.WithLabelValues(req.Endpoint, req.Method, "429").Inc()
			p.track(req, "rate_limited", 429, p.now().Sub(start), 0, map[string]any{"policy": check.Policy})
			return nil, &RateLimitError{Policy: check.Policy, Info: info}
		}
	}
	return last, nil
}

func identityChecks(identity *models.AuthContext) []services.PolicyCheck {
	if identity == nil {
		return nil
	}
	if identity.Mode == "api-key" {
		return []services.PolicyCheck{{Policy: "api_key", Identifier: identity.Subject}}
	}
	return []services.PolicyCheck{{Policy: "user", Identifier: identity.Subject}}
}

func (p *Pipeline) track(req Request, event string, status int, duration time.Duration, cost float64, metadata map[string]any) {
	record := models.AnalyticsEvent{
		Event:        event,
		Endpoint:     req.Endpoint,
		Method:       req.Method,
		StatusCode:   status,
		ResponseTime: duration.Milliseconds(),
		Cost:         cost,
		UserAgent:    req.UserAgent,
		IP:           p.analytics.HashIP(req.ClientIP),
		Metadata:     metadata,
	}
	if req.Identity != nil {
		if req.Identity.Mode == "api-key" {
			record.APIKey = req.Identity.Subject
		} else {
			record.UserID = req.Identity.Subject
		}
	}
	p.analytics.Track(record)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "502"
	case status == 429:
		return "429"
	case status >= 400:
		return "400"
	default:
		return "200"
	}
}
