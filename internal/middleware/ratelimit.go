package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// IPRateLimit consumes one point from the ip policy per request before
// anything else runs. Identity-scoped policies are charged later in the
// gateway pipeline so cached responses never consume them.
func IPRateLimit(rateLimitService *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, info, err := rateLimitService.Allow(c.Request.Context(), "ip", c.ClientIP())
		if err != nil {
			logger.WithError(err).Error("Failed to check ip rate limit")
			c.Next()
			return
		}

		SetRateLimitHeaders(c, info)

		if !allowed {
			logger.WithFields(logrus.Fields{
				"client_ip": c.ClientIP(),
				"limit":     info.Limit,
			}).Warn("IP rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SetRateLimitHeaders writes the standard X-RateLimit headers, plus
// Retry-After when the caller is blocked.
func SetRateLimitHeaders(c *gin.Context, info *models.RateLimitInfo) {
	if info == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))
	if info.RetryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(info.RetryAfter, 10))
	}
}
