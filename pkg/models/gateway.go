package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyticsEvent is one record per gateway request attempt, success or
// failure. Events live in a bounded in-memory buffer and are optionally
// streamed to Kafka and flushed to Postgres.
type AnalyticsEvent struct {
	ID           uuid.UUID      `json:"id"`
	Event        string         `json:"event"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id,omitempty"`
	APIKey       string         `json:"api_key,omitempty"`
	Endpoint     string         `json:"endpoint"`
	Method       string         `json:"method"`
	StatusCode   int            `json:"status_code"`
	ResponseTime int64          `json:"response_time_ms"`
	Cost         float64        `json:"cost,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	IP           string         `json:"ip,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EndpointCount pairs an endpoint with its request count for ranking.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// AnalyticsMetrics aggregates buffered events over a time range.
type AnalyticsMetrics struct {
	TotalRequests       int             `json:"total_requests"`
	TotalCost           float64         `json:"total_cost"`
	AverageResponseTime float64         `json:"average_response_time_ms"`
	P95ResponseTime     float64         `json:"p95_response_time_ms"`
	P99ResponseTime     float64         `json:"p99_response_time_ms"`
	ErrorRate           float64         `json:"error_rate"`
	CacheHitRate        float64         `json:"cache_hit_rate"`
	TopEndpoints        []EndpointCount `json:"top_endpoints"`
	TopUsers            []UserCount     `json:"top_users"`
}

// Lead is an inbound marketing lead captured via GPT Actions. Persistence
// is intentionally stubbed; only the acknowledgement shape is stable.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Consent   bool      `json:"consent"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateLeadRequest is the body of POST /api/gpt-actions/leads.
type CreateLeadRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Name    string `json:"name,omitempty" binding:"omitempty,max=200"`
	Company string `json:"company,omitempty" binding:"omitempty,max=200"`
	Message string `json:"message,omitempty" binding:"omitempty,max=2000"`
	Consent bool   `json:"consent" binding:"required"`
}

// HealthStatus mirrors the component health check response.
type HealthStatus struct {
	Status     string            `json:"status"` // healthy, degraded, unhealthy
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	Version    string            `json:"version,omitempty"`
}
