package gateway

import (
	"fmt"

	"github.com/fascinante-digital/gateway/pkg/models"
)

// UpstreamError wraps a provider failure. The original status is surfaced
// where safe; secrets and provider internals never reach the caller.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream call to %s failed with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RateLimitError reports the first policy that rejected a request, with
// its retry-after.
type RateLimitError struct {
	Policy string
	Info   *models.RateLimitInfo
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for policy %s", e.Policy)
}
