package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/pkg/models"
)

const identityContextKey = "auth_identity"

// Auth resolves the caller identity from the Authorization header and
// attaches it to the request context. Both the static GPT Actions API key
// and OAuth bearer tokens are accepted; the error body never reveals
// which check failed.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authService.ResolveIdentity(c.GetHeader("Authorization"))
		if err != nil {
			logger.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			}).Warn("Unauthorized request")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Missing or invalid credentials",
				},
			})
			c.Abort()
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the identity Auth attached, or nil on
// routes that run without it.
func IdentityFromContext(c *gin.Context) *models.AuthContext {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return nil
	}
	identity, ok := value.(*models.AuthContext)
	if !ok {
		return nil
	}
	return identity
}
