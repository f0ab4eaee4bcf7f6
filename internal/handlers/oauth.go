package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// OAuthHandler exposes the authorization-server endpoints: authorize,
// token, userinfo and the JWKS document. Error bodies follow the OAuth
// error/error_description shape rather than the gateway envelope.
type OAuthHandler struct {
	logger *logrus.Logger
	oauth  *services.OAuthService
}

func NewOAuthHandler(logger *logrus.Logger, oauth *services.OAuthService) *OAuthHandler {
	return &OAuthHandler{
		logger: logger,
		oauth:  oauth,
	}
}

// Authorize handles GET /oauth/authorize. Validation failures return a
// 400 instead of redirecting, since an invalid request means the
// redirect target itself cannot be trusted.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	var request models.AuthorizeRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		h.logger.WithError(err).Warn("Malformed authorization request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	redirectURL, err := h.oauth.Authorize(c.Request.Context(), request)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirectURL)
}

// Token handles POST /oauth/token for the authorization_code and
// refresh_token grants. Both form and JSON bodies are accepted.
func (h *OAuthHandler) Token(c *gin.Context) {
	var request models.TokenRequest

	var err error
	if strings.Contains(c.ContentType(), "application/json") {
		err = c.ShouldBindJSON(&request)
	} else {
		err = c.ShouldBind(&request)
	}
	if err != nil {
		h.logger.WithError(err).Warn("Malformed token request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	response, err := h.oauth.Exchange(c.Request.Context(), request)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	// Token responses must never be cached by intermediaries.
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, response)
}

// UserInfo handles GET /oauth/userinfo for a verified access token.
func (h *OAuthHandler) UserInfo(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.Header("WWW-Authenticate", `Bearer realm="userinfo"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "A bearer access token is required",
		})
		return
	}

	info, err := h.oauth.UserInfo(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		c.Header("WWW-Authenticate", `Bearer realm="userinfo", error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "The access token is invalid or expired",
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// JWKS handles GET /.well-known/jwks.json.
func (h *OAuthHandler) JWKS(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, h.oauth.JWKS())
}

func (h *OAuthHandler) respondOAuthError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": validationErr.Error(),
		})
		return
	}

	status := http.StatusBadRequest
	code := "invalid_request"

	switch {
	case errors.Is(err, services.ErrClientAuth):
		status = http.StatusUnauthorized
		code = "invalid_client"
	case errors.Is(err, services.ErrUnknownClient):
		code = "invalid_client"
	case errors.Is(err, services.ErrInvalidResponse):
		code = "unsupported_response_type"
	case errors.Is(err, services.ErrUnsupportedGrant):
		code = "unsupported_grant_type"
	case errors.Is(err, services.ErrInvalidScope):
		code = "invalid_scope"
	case errors.Is(err, services.ErrCodeInvalid),
		errors.Is(err, services.ErrPKCEFailed),
		errors.Is(err, services.ErrRedirectMismatch),
		errors.Is(err, services.ErrRefreshInvalid):
		code = "invalid_grant"
	case errors.Is(err, services.ErrUnsupportedPKCE):
		code = "invalid_request"
	default:
		h.logger.WithError(err).Error("OAuth request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "The authorization server encountered an error",
		})
		return
	}

	c.JSON(status, gin.H{
		"error":             code,
		"error_description": err.Error(),
	})
}
