package handlers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/database"
	"github.com/fascinante-digital/gateway/internal/middleware"
	"github.com/fascinante-digital/gateway/internal/services"
)

var (
	keyOnce    sync.Once
	privatePEM string
	publicPEM  string
	keyErr     error
)

func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			keyErr = err
			return
		}
		privatePEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
		publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			keyErr = err
			return
		}
		publicPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: publicDER,
		}))
	})
	require.NoError(t, keyErr)
	return privatePEM, publicPEM
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	private, public := testKeyPair(t)

	return &config.Config{
		OAuth: config.OAuthConfig{
			Issuer:          "https://gateway.test",
			Audience:        "https://gateway.test/api",
			ClientID:        "gpt-actions-client",
			ClientSecret:    "test-client-secret",
			RedirectURI:     "https://chat.example.com/callback",
			Scopes:          []string{"openid", "email", "profile"},
			JWTPrivateKey:   private,
			JWTPublicKey:    public,
			JWTKid:          "test-key-1",
			JWTAlgorithm:    "RS256",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			AuthCodeTTL:     5 * time.Minute,
			ClockSkew:       60 * time.Second,
			CodeLength:      32,
			ResourceOwner: config.ResourceOwnerConfig{
				Subject:       "gateway-owner",
				Email:         "owner@example.com",
				Name:          "Gateway Owner",
				EmailVerified: true,
			},
		},
		Auth: config.AuthConfig{
			GPTActionsAPIKey: "test-gpt-actions-key",
		},
		RateLimit: config.RateLimitConfig{
			Policies: map[string]config.RateLimitPolicy{
				"api_key": {Points: 1000, Duration: time.Minute, BlockDuration: time.Minute},
				"ip":      {Points: 100, Duration: time.Minute, BlockDuration: time.Minute},
				"user":    {Points: 500, Duration: time.Hour, BlockDuration: time.Hour},
			},
		},
		Cache: config.CacheConfig{
			KeyPrefix:  "gateway",
			DefaultTTL: time.Hour,
		},
		Analytics: config.AnalyticsConfig{
			Enabled:       true,
			BufferSize:    100,
			FlushInterval: time.Second,
			IPSalt:        "test-salt",
		},
	}
}

// newTestRouter wires the full handler stack onto a fresh engine, the
// same shape the application router uses.
func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *services.Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testLogger()

	svc, err := services.New(cfg, logger, &database.Database{}, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)

	h, err := New(cfg, logger, svc)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/health", h.Health.Check)

	router.GET("/oauth/authorize", h.OAuth.Authorize)
	router.POST("/oauth/token", h.OAuth.Token)
	router.GET("/oauth/userinfo", h.OAuth.UserInfo)
	router.GET("/.well-known/jwks.json", h.OAuth.JWKS)

	auth := middleware.Auth(svc.Auth, logger)

	api := router.Group("/api/v1")
	api.Use(auth)
	api.GET("/pagespeed", h.PageSpeed.Analyze)
	api.GET("/pagespeed/core-web-vitals", h.PageSpeed.CoreWebVitals)
	api.GET("/meta/ad-library", h.Meta.SearchAds)
	api.GET("/google-my-business", h.Business.Dispatch)
	api.POST("/google-my-business", h.Business.Dispatch)
	api.GET("/analytics/metrics", h.Analytics.Metrics)
	api.GET("/analytics/events", h.Analytics.Events)

	v3 := router.Group("/api/v3")
	v3.Use(auth)
	v3.GET("/*path", h.DataForSEO.Proxy)
	v3.POST("/*path", h.DataForSEO.Proxy)

	gpt := router.Group("/api/gpt-actions")
	gpt.Use(auth)
	gpt.POST("/leads", h.Leads.Create)

	return router, svc
}
