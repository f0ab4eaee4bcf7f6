package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
	"github.com/fascinante-digital/gateway/internal/upstream"
)

const (
	pagespeedCacheTTL     = time.Hour
	coreWebVitalsCacheTTL = 30 * time.Minute
)

var pagespeedStrategies = map[string]bool{"mobile": true, "desktop": true}

// PageSpeedHandler proxies PageSpeed Insights audits through the gateway
// pipeline.
type PageSpeedHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	pipeline *gateway.Pipeline
	client   *upstream.PageSpeedClient
}

func NewPageSpeedHandler(cfg *config.Config, logger *logrus.Logger, pipeline *gateway.Pipeline, client *upstream.PageSpeedClient) *PageSpeedHandler {
	return &PageSpeedHandler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		client:   client,
	}
}

// Analyze handles GET /api/v1/pagespeed.
func (h *PageSpeedHandler) Analyze(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_URL",
				"message": "The url query parameter is required",
			},
		})
		return
	}
	if parsed, err := url.Parse(target); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_URL",
				"message": "The url parameter must be an absolute http or https URL",
			},
		})
		return
	}

	strategy := c.DefaultQuery("strategy", "mobile")
	if !pagespeedStrategies[strategy] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_STRATEGY",
				"message": "strategy must be mobile or desktop",
			},
		})
		return
	}

	categories := c.QueryArray("category")
	if len(categories) == 0 {
		categories = []string{"performance", "seo"}
	}

	params := map[string]any{
		"url":        target,
		"strategy":   strategy,
		"categories": categories,
	}

	runPipeline(c, h.logger, h.pipeline, gateway.Request{
		Endpoint: "pagespeed",
		Method:   http.MethodGet,
		Params:   params,
		TTL:      pagespeedCacheTTL,
		Call: func(ctx context.Context) (any, float64, error) {
			return h.client.Analyze(ctx, target, strategy, categories)
		},
	})
}

// CoreWebVitals handles GET /api/v1/pagespeed/core-web-vitals. It runs a
// performance-only audit with a shorter cache window since field data moves
// faster than full audits.
func (h *PageSpeedHandler) CoreWebVitals(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_URL",
				"message": "The url query parameter is required",
			},
		})
		return
	}
	if parsed, err := url.Parse(target); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_URL",
				"message": "The url parameter must be an absolute http or https URL",
			},
		})
		return
	}

	strategy := c.DefaultQuery("strategy", "mobile")
	if !pagespeedStrategies[strategy] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_STRATEGY",
				"message": "strategy must be mobile or desktop",
			},
		})
		return
	}

	categories := []string{"performance"}
	params := map[string]any{
		"url":      target,
		"strategy": strategy,
	}

	runPipeline(c, h.logger, h.pipeline, gateway.Request{
		Endpoint: "pagespeed:core-web-vitals",
		Method:   http.MethodGet,
		Params:   params,
		TTL:      coreWebVitalsCacheTTL,
		Call: func(ctx context.Context) (any, float64, error) {
			return h.client.Analyze(ctx, target, strategy, categories)
		},
	})
}
