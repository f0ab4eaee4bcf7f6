package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// Error taxonomy for the authorization flow. Handlers map these onto
// status codes: unknown client / bad redirect / bad scope / bad code /
// failed PKCE are 400s, credential mismatches are 401s.
var (
	ErrUnknownClient    = errors.New("unknown client_id")
	ErrRedirectMismatch = errors.New("redirect_uri does not match the registered URI")
	ErrInvalidScope     = errors.New("requested scope is not allowed")
	ErrUnsupportedPKCE  = errors.New("only the S256 code_challenge_method is supported")
	ErrInvalidResponse  = errors.New("response_type must be code")
	ErrClientAuth       = errors.New("invalid client credentials")
	ErrCodeInvalid      = errors.New("authorization code is invalid, expired, or already used")
	ErrPKCEFailed       = errors.New("code_verifier does not match the code_challenge")
	ErrRefreshInvalid   = errors.New("refresh token is invalid, expired, or revoked")
	ErrUnsupportedGrant = errors.New("unsupported grant_type")
)

// ValidationError reports a missing or malformed request field with
// enough structure for a field-level 400 body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

const (
	authCodeKeyPrefix    = "oauth:code:"
	revokedJTIKeyPrefix  = "oauth:revoked:"
)

// OAuthService orchestrates the authorization-code grant with PKCE for
// the single configured client. Authorization codes are staged in the
// cache store and consumed exactly once; refresh tokens are rotated and
// the replaced jti denylisted for its remaining lifetime.
type OAuthService struct {
	config *config.Config
	logger *logrus.Logger
	tokens *TokenService
	cache  *CacheService
	now    func() time.Time
}

func NewOAuthService(cfg *config.Config, logger *logrus.Logger, tokens *TokenService, cache *CacheService) *OAuthService {
	return &OAuthService{
		config: cfg,
		logger: logger,
		tokens: tokens,
		cache:  cache,
		now:    time.Now,
	}
}

// Authorize validates an authorization request, stages a fresh code bound
// to the request, and returns the redirect URL carrying code and state.
func (s *OAuthService) Authorize(ctx context.Context, req models.AuthorizeRequest) (string, error) {
	if req.ResponseType != "code" {
		return "", ErrInvalidResponse
	}
	if req.CodeChallengeMethod != PKCECodeChallengeMethod {
		return "", ErrUnsupportedPKCE
	}
	if req.ClientID != s.config.OAuth.ClientID {
		s.logger.WithField("client_id", req.ClientID).Warn("Authorization request for unknown client")
		return "", ErrUnknownClient
	}
	// Exact match only. Prefix or partial matching would open a redirect
	// vector.
	if req.RedirectURI != s.config.OAuth.RedirectURI {
		s.logger.WithField("redirect_uri", req.RedirectURI).Warn("Authorization request with unregistered redirect_uri")
		return "", ErrRedirectMismatch
	}
	if err := s.validateScopes(req.Scope); err != nil {
		return "", err
	}

	code, err := GenerateAuthorizationCode(s.config.OAuth.CodeLength)
	if err != nil {
		return "", err
	}

	binding := models.AuthorizationCodeBinding{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		Scope:         req.Scope,
		IssuedAt:      s.now().Unix(),
	}
	s.cache.Set(ctx, authCodeKeyPrefix+code, binding, s.config.OAuth.AuthCodeTTL)

	redirectURL, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to build redirect URL: %w", err)
	}
	query := redirectURL.Query()
	query.Set("code", code)
	query.Set("state", req.State)
	redirectURL.RawQuery = query.Encode()

	s.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
		"scope":     req.Scope,
	}).Info("Authorization code issued")

	return redirectURL.String(), nil
}

// Exchange handles POST /oauth/token for both grant types.
func (s *OAuthService) Exchange(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	if req.ClientID != s.config.OAuth.ClientID || req.ClientSecret != s.config.OAuth.ClientSecret {
		s.logger.WithField("client_id", req.ClientID).Warn("Token request with invalid client credentials")
		return nil, ErrClientAuth
	}

	switch req.GrantType {
	case "authorization_code":
		return s.exchangeAuthorizationCode(ctx, req)
	case "refresh_token":
		return s.exchangeRefreshToken(ctx, req)
	default:
		return nil, ErrUnsupportedGrant
	}
}

func (s *OAuthService) exchangeAuthorizationCode(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	if req.Code == "" {
		return nil, &ValidationError{Field: "code", Reason: "required for the authorization_code grant"}
	}
	if req.RedirectURI == "" {
		return nil, &ValidationError{Field: "redirect_uri", Reason: "required for the authorization_code grant"}
	}
	if req.CodeVerifier == "" {
		return nil, &ValidationError{Field: "code_verifier", Reason: "required for the authorization_code grant"}
	}

	// Delete-on-read enforces single use: a replayed code misses here.
	data, ok := s.cache.GetDel(ctx, authCodeKeyPrefix+req.Code)
	if !ok {
		s.logger.Warn("Token request with unknown or consumed authorization code")
		return nil, ErrCodeInvalid
	}

	var binding models.AuthorizationCodeBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		s.logger.WithError(err).Error("Corrupt authorization code binding")
		return nil, ErrCodeInvalid
	}

	if req.RedirectURI != binding.RedirectURI {
		s.logger.Warn("Token request redirect_uri does not match code binding")
		return nil, ErrRedirectMismatch
	}
	if !VerifyCodeChallenge(req.CodeVerifier, binding.CodeChallenge) {
		s.logger.Warn("PKCE verification failed")
		return nil, ErrPKCEFailed
	}

	response, err := s.issueTokenPair(binding.Scope)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"grant_type": "authorization_code",
		"subject":    s.config.OAuth.ResourceOwner.Subject,
	}).Info("OAuth tokens issued")

	return response, nil
}

func (s *OAuthService) exchangeRefreshToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, &ValidationError{Field: "refresh_token", Reason: "required for the refresh_token grant"}
	}

	claims, err := s.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.logger.WithError(err).Warn("Refresh token verification failed")
		return nil, ErrRefreshInvalid
	}

	// Rotation: the presented jti is consumed by claiming its denylist
	// slot atomically. A replay, concurrent or later, loses the claim and
	// is rejected.
	remaining := time.Until(claims.ExpiresAt.Time) + s.config.OAuth.ClockSkew
	if remaining <= 0 {
		return nil, ErrRefreshInvalid
	}
	revokedKey := revokedJTIKeyPrefix + claims.ID
	if !s.cache.Add(ctx, revokedKey, true, remaining) {
		s.logger.WithField("jti", claims.ID).Warn("Replayed refresh token rejected")
		return nil, ErrRefreshInvalid
	}

	response, err := s.issueTokenPair(strings.Join(s.config.OAuth.Scopes, " "))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"grant_type": "refresh_token",
		"subject":    claims.Subject,
	}).Info("OAuth tokens refreshed")

	return response, nil
}

func (s *OAuthService) issueTokenPair(scope string) (*models.TokenResponse, error) {
	owner := s.config.OAuth.ResourceOwner

	accessToken, err := s.tokens.IssueAccessToken(owner)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(owner.Subject)
	if err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.OAuth.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

// UserInfo returns the public claims for a verified access token.
func (s *OAuthService) UserInfo(tokenString string) (*models.UserInfo, error) {
	claims, err := s.tokens.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return &models.UserInfo{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// JWKS exposes the token service's public key set.
func (s *OAuthService) JWKS() models.JWKS {
	return s.tokens.JWKS()
}

func (s *OAuthService) validateScopes(scope string) error {
	allowed := make(map[string]bool, len(s.config.OAuth.Scopes))
	for _, name := range s.config.OAuth.Scopes {
		allowed[name] = true
	}
	for _, requested := range strings.Fields(scope) {
		if !allowed[requested] {
			s.logger.WithField("scope", requested).Warn("Authorization request with disallowed scope")
			return ErrInvalidScope
		}
	}
	return nil
}
