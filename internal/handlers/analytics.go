package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/middleware"
	"github.com/fascinante-digital/gateway/internal/services"
)

// AnalyticsHandler exposes aggregated usage metrics and per-caller event
// history from the in-memory analytics buffer.
type AnalyticsHandler struct {
	logger    *logrus.Logger
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(logger *logrus.Logger, analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		logger:    logger,
		analytics: analytics,
	}
}

// Metrics handles GET /api/v1/analytics/metrics.
func (h *AnalyticsHandler) Metrics(c *gin.Context) {
	timeRange := 24 * time.Hour
	if raw := c.Query("range"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_RANGE",
					"message": "range must be a positive duration such as 1h or 24h",
				},
			})
			return
		}
		timeRange = parsed
	}

	c.JSON(http.StatusOK, h.analytics.Metrics(timeRange))
}

// Events handles GET /api/v1/analytics/events, returning the caller's own
// recent events.
func (h *AnalyticsHandler) Events(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Missing or invalid credentials",
			},
		})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_LIMIT",
					"message": "limit must be an integer between 1 and 1000",
				},
			})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"events": h.analytics.UserEvents(identity.Subject, limit),
	})
}
