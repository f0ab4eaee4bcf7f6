package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
	"github.com/fascinante-digital/gateway/internal/middleware"
	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/internal/upstream"
)

type Handlers struct {
	Health     *HealthHandler
	OAuth      *OAuthHandler
	PageSpeed  *PageSpeedHandler
	Meta       *MetaHandler
	DataForSEO *DataForSEOHandler
	Business   *BusinessHandler
	Leads      *LeadsHandler
	Analytics  *AnalyticsHandler
}

func New(cfg *config.Config, logger *logrus.Logger, services *services.Services) (*Handlers, error) {
	pipeline := gateway.NewPipeline(cfg, logger, services)

	dataforseo := upstream.NewDataForSEOClient(cfg.Upstreams.DataForSEO, logger)
	pagespeed := upstream.NewPageSpeedClient(cfg.Upstreams.PageSpeed, logger)
	meta := upstream.NewMetaClient(cfg.Upstreams.Meta, logger)

	business, err := NewBusinessHandler(cfg, logger, pipeline, dataforseo)
	if err != nil {
		return nil, fmt.Errorf("failed to build business action registry: %w", err)
	}

	return &Handlers{
		Health:     NewHealthHandler(logger, services.Health),
		OAuth:      NewOAuthHandler(logger, services.OAuth),
		PageSpeed:  NewPageSpeedHandler(cfg, logger, pipeline, pagespeed),
		Meta:       NewMetaHandler(cfg, logger, pipeline, meta),
		DataForSEO: NewDataForSEOHandler(cfg, logger, pipeline, dataforseo),
		Business:   business,
		Leads:      NewLeadsHandler(logger, services.Analytics),
		Analytics:  NewAnalyticsHandler(logger, services.Analytics),
	}, nil
}

// runPipeline fills the caller context into a pipeline request, executes
// it and writes the response.
func runPipeline(c *gin.Context, logger *logrus.Logger, pipeline *gateway.Pipeline, req gateway.Request) {
	req.Identity = middleware.IdentityFromContext(c)
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	result, err := pipeline.Execute(c.Request.Context(), req)
	if err != nil {
		respondPipelineError(c, logger, err)
		return
	}
	respondResult(c, result)
}

// respondResult writes a successful pipeline outcome with its cache and
// timing headers.
func respondResult(c *gin.Context, result *gateway.Result) {
	c.Header("X-Cache", result.CacheStatus)
	c.Header("X-Response-Time", fmt.Sprintf("%dms", result.Duration.Milliseconds()))
	middleware.SetRateLimitHeaders(c, result.RateLimit)
	c.JSON(http.StatusOK, result.Payload)
}

// respondPipelineError maps pipeline errors onto status codes. Rate-limit
// rejections become 429s with retry headers; upstream failures keep their
// 4xx status when the caller can act on it and collapse to 502 otherwise.
func respondPipelineError(c *gin.Context, logger *logrus.Logger, err error) {
	var rateLimitErr *gateway.RateLimitError
	if errors.As(err, &rateLimitErr) {
		middleware.SetRateLimitHeaders(c, rateLimitErr.Info)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Rate limit exceeded. Please try again later.",
			},
			"rate_limit": rateLimitErr.Info,
		})
		return
	}

	var upstreamErr *gateway.UpstreamError
	if errors.As(err, &upstreamErr) {
		status := http.StatusBadGateway
		if upstreamErr.StatusCode >= 400 && upstreamErr.StatusCode < 500 {
			status = upstreamErr.StatusCode
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    "UPSTREAM_ERROR",
				"message": "Upstream request failed",
			},
		})
		return
	}

	logger.WithError(err).Error("Gateway pipeline failure")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_SERVER_ERROR",
			"message": "Internal server error",
		},
	})
}
