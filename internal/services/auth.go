package services

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// ErrUnauthorized is returned for any credential the gateway cannot
// verify. Callers map it to a 401 without leaking which check failed.
var ErrUnauthorized = errors.New("missing or invalid credentials")

// AuthService resolves the caller identity for gateway requests. Two
// modes are supported: the static GPT Actions API key, and OAuth bearer
// tokens issued by this gateway. Credential storage is out of scope; only
// verification happens here.
type AuthService struct {
	config *config.Config
	logger *logrus.Logger
	tokens *TokenService
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, tokens *TokenService) *AuthService {
	return &AuthService{
		config: cfg,
		logger: logger,
		tokens: tokens,
	}
}

// ResolveIdentity authenticates an Authorization header value.
func (s *AuthService) ResolveIdentity(authHeader string) (*models.AuthContext, error) {
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrUnauthorized
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	if token == s.config.Auth.GPTActionsAPIKey {
		return &models.AuthContext{
			Mode:    "api-key",
			Subject: "gpt-actions",
		}, nil
	}

	// JWTs are the only other accepted credential; everything else is an
	// unknown key.
	if strings.Count(token, ".") == 2 {
		claims, err := s.tokens.VerifyAccessToken(token)
		if err != nil {
			s.logger.WithError(err).Warn("Invalid OAuth bearer token")
			return nil, ErrUnauthorized
		}
		return &models.AuthContext{
			Mode:          "oauth",
			Subject:       claims.Subject,
			Email:         claims.Email,
			Name:          claims.Name,
			EmailVerified: claims.EmailVerified,
		}, nil
	}

	s.logger.Warn("Unrecognized bearer credential format")
	return nil, ErrUnauthorized
}
