package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
	"github.com/fascinante-digital/gateway/internal/upstream"
)

// POST task results are stable once computed; GET passthroughs serve
// fresher listings and keep a shorter window.
const (
	dataforseoCacheTTL    = time.Hour
	dataforseoGetCacheTTL = 30 * time.Minute
)

// dataforseoAllowedPrefixes bounds the v3 passthrough to the API families
// the gateway exposes. Anything else is rejected before leaving the
// process.
var dataforseoAllowedPrefixes = []string{
	"serp/",
	"keywords_data/",
	"backlinks/",
	"business_data/",
	"on_page/",
	"domain_analytics/",
	"dataforseo_labs/",
}

// DataForSEOHandler forwards requests under /api/v3 to DataForSEO,
// injecting credentials and running the gateway pipeline.
type DataForSEOHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	pipeline *gateway.Pipeline
	client   *upstream.DataForSEOClient
}

func NewDataForSEOHandler(cfg *config.Config, logger *logrus.Logger, pipeline *gateway.Pipeline, client *upstream.DataForSEOClient) *DataForSEOHandler {
	return &DataForSEOHandler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		client:   client,
	}
}

// Proxy handles GET and POST /api/v3/*path.
func (h *DataForSEOHandler) Proxy(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if !pathAllowed(path) {
		h.logger.WithField("path", path).Warn("Rejected passthrough to unlisted API path")
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "UNKNOWN_API_PATH",
				"message": "The requested API path is not exposed by this gateway",
			},
		})
		return
	}

	var body any
	if c.Request.Method == http.MethodPost {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_BODY",
					"message": "Failed to read request body",
				},
			})
			return
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": gin.H{
						"code":    "INVALID_JSON",
						"message": "Request body must be valid JSON",
					},
				})
				return
			}
		}
	}

	method := c.Request.Method
	params := map[string]any{
		"path":   path,
		"method": method,
		"body":   body,
	}

	ttl := dataforseoCacheTTL
	if method == http.MethodGet {
		ttl = dataforseoGetCacheTTL
	}

	runPipeline(c, h.logger, h.pipeline, gateway.Request{
		Endpoint: "dataforseo:" + path,
		Method:   method,
		Params:   params,
		TTL:      ttl,
		Call: func(ctx context.Context) (any, float64, error) {
			return h.client.Call(ctx, method, path, body)
		},
		Cacheable: upstream.Successful,
	})
}

func pathAllowed(path string) bool {
	for _, prefix := range dataforseoAllowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
