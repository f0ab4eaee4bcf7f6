package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fascinante-digital/gateway/internal/config"
)

var (
	testKeyOnce    sync.Once
	testPrivatePEM string
	testPublicPEM  string
	testKeyErr     error
)

// testKeyPair generates one RSA key pair for the whole test run.
func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			testKeyErr = err
			return
		}
		testPrivatePEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
		publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			testKeyErr = err
			return
		}
		testPublicPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: publicDER,
		}))
	})
	require.NoError(t, testKeyErr)
	return testPrivatePEM, testPublicPEM
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	privatePEM, publicPEM := testKeyPair(t)

	return &config.Config{
		OAuth: config.OAuthConfig{
			Issuer:          "https://gateway.test",
			Audience:        "https://gateway.test/api",
			ClientID:        "gpt-actions-client",
			ClientSecret:    "test-client-secret",
			RedirectURI:     "https://chat.example.com/callback",
			Scopes:          []string{"openid", "email", "profile"},
			JWTPrivateKey:   privatePEM,
			JWTPublicKey:    publicPEM,
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
