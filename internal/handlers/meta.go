package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
	"github.com/fascinante-digital/gateway/internal/upstream"
)

const metaCacheTTL = 15 * time.Minute

// MetaHandler proxies Meta Ad Library searches through the gateway
// pipeline.
type MetaHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	pipeline *gateway.Pipeline
	client   *upstream.MetaClient
}

func NewMetaHandler(cfg *config.Config, logger *logrus.Logger, pipeline *gateway.Pipeline, client *upstream.MetaClient) *MetaHandler {
	return &MetaHandler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		client:   client,
	}
}

// SearchAds handles GET /api/v1/meta/ad-library.
func (h *MetaHandler) SearchAds(c *gin.Context) {
	terms := c.Query("search_terms")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_SEARCH_TERMS",
				"message": "The search_terms query parameter is required",
			},
		})
		return
	}

	limit := 25
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_LIMIT",
					"message": "limit must be an integer between 1 and 100",
				},
			})
			return
		}
		limit = parsed
	}

	query := map[string]string{
		"search_terms":         terms,
		"ad_reached_countries": c.DefaultQuery("country", "US"),
		"ad_type":              c.DefaultQuery("ad_type", "ALL"),
		"ad_active_status":     c.DefaultQuery("ad_active_status", "ALL"),
		"fields":               "id,page_id,page_name,ad_delivery_start_time,ad_delivery_stop_time,ad_creative_bodies,publisher_platforms",
		"limit":                strconv.Itoa(limit),
	}

	params := make(map[string]any, len(query))
	for key, value := range query {
		params[key] = value
	}

	runPipeline(c, h.logger, h.pipeline, gateway.Request{
		Endpoint: "meta:ad-library",
		Method:   http.MethodGet,
		Params:   params,
		TTL:      metaCacheTTL,
		Call: func(ctx context.Context) (any, float64, error) {
			return h.client.SearchAds(ctx, query)
		},
	})
}
