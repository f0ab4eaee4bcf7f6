package services

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinante-digital/gateway/pkg/models"
)

func newOAuthEnv(t *testing.T) (*OAuthService, *TokenService, *CacheService) {
	t.Helper()
	cfg := testConfig(t)
	logger := testLogger()

	tokens, err := NewTokenService(cfg, logger)
	require.NoError(t, err)
	cache := NewCacheService(cfg, logger, nil)
	return NewOAuthService(cfg, logger, tokens, cache), tokens, cache
}

func validAuthorizeRequest(t *testing.T) (models.AuthorizeRequest, string) {
	t.Helper()
	verifier, err := GenerateCodeVerifier(0)
	require.NoError(t, err)

	return models.AuthorizeRequest{
		ClientID:            "gpt-actions-client",
		RedirectURI:         "https://chat.example.com/callback",
		Scope:               "openid email",
		State:               "xyz-state",
		CodeChallenge:       ComputeCodeChallenge(verifier),
		CodeChallengeMethod: "S256",
		ResponseType:        "code",
	}, verifier
}

func authorizeAndExtractCode(t *testing.T, oauth *OAuthService, req models.AuthorizeRequest) string {
	t.Helper()
	redirect, err := oauth.Authorize(context.Background(), req)
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, req.State, parsed.Query().Get("state"))
	return code
}

func TestOAuthService_AuthorizeValidation(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	tests := []struct {
		name    string
		mutate  func(*models.AuthorizeRequest)
		wantErr error
	}{
		{
			name:    "wrong response type",
			mutate:  func(r *models.AuthorizeRequest) { r.ResponseType = "token" },
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "plain pkce rejected",
			mutate:  func(r *models.AuthorizeRequest) { r.CodeChallengeMethod = "plain" },
			wantErr: ErrUnsupportedPKCE,
		},
		{
			name:    "unknown client",
			mutate:  func(r *models.AuthorizeRequest) { r.ClientID = "someone-else" },
			wantErr: ErrUnknownClient,
		},
		{
			name:    "redirect prefix is not a match",
			mutate:  func(r *models.AuthorizeRequest) { r.RedirectURI = "https://chat.example.com/callback/extra" },
			wantErr: ErrRedirectMismatch,
		},
		{
			name:    "disallowed scope",
			mutate:  func(r *models.AuthorizeRequest) { r.Scope = "openid admin" },
			wantErr: ErrInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := validAuthorizeRequest(t)
			tt.mutate(&req)

			_, err := oauth.Authorize(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOAuthService_AuthorizationCodeFlow(t *testing.T) {
	oauth, tokens, _ := newOAuthEnv(t)
	ctx := context.Background()

	req, verifier := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	tokenReq := models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: verifier,
	}

	response, err := oauth.Exchange(ctx, tokenReq)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", response.TokenType)
	assert.Equal(t, int64(3600), response.ExpiresIn)
	assert.Equal(t, "openid email", response.Scope)

	claims, err := tokens.VerifyAccessToken(response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "gateway-owner", claims.Subject)

	_, err = tokens.VerifyRefreshToken(response.RefreshToken)
	require.NoError(t, err)

	// The code was consumed on first use; a replay fails.
	_, err = oauth.Exchange(ctx, tokenReq)
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestOAuthService_ExchangeRejectsWrongVerifier(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	req, _ := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	wrongVerifier, err := GenerateCodeVerifier(0)
	require.NoError(t, err)

	_, err = oauth.Exchange(context.Background(), models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: wrongVerifier,
	})
	assert.ErrorIs(t, err, ErrPKCEFailed)
}

func TestOAuthService_ExchangeRejectsRedirectMismatch(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	req, verifier := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	_, err := oauth.Exchange(context.Background(), models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  "https://evil.example.com/callback",
		CodeVerifier: verifier,
	})
	assert.ErrorIs(t, err, ErrRedirectMismatch)
}

func TestOAuthService_ExchangeRejectsBadClientCredentials(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	_, err := oauth.Exchange(context.Background(), models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "wrong-secret",
		Code:         "whatever",
	})
	assert.ErrorIs(t, err, ErrClientAuth)
}

func TestOAuthService_ExchangeMissingFields(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	_, err := oauth.Exchange(context.Background(), models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "code", validationErr.Field)
}

func TestOAuthService_UnsupportedGrant(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	_, err := oauth.Exchange(context.Background(), models.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
	})
	assert.ErrorIs(t, err, ErrUnsupportedGrant)
}

func TestOAuthService_RefreshRotationBlocksReplay(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)
	ctx := context.Background()

	req, verifier := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	initial, err := oauth.Exchange(ctx, models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	refreshReq := models.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		RefreshToken: initial.RefreshToken,
	}

	rotated, err := oauth.Exchange(ctx, refreshReq)
	require.NoError(t, err)
	assert.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)

	// The consumed refresh token is denylisted until it expires.
	_, err = oauth.Exchange(ctx, refreshReq)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	// The rotated token still works.
	_, err = oauth.Exchange(ctx, models.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		RefreshToken: rotated.RefreshToken,
	})
	assert.NoError(t, err)
}

func TestOAuthService_ConcurrentRefreshReplaysRotateOnce(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)
	ctx := context.Background()

	req, verifier := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	initial, err := oauth.Exchange(ctx, models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)

	refreshReq := models.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		RefreshToken: initial.RefreshToken,
	}

	// The jti denylist claim is atomic, so racing replays of the same
	// refresh token rotate exactly once.
	const attempts = 8
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := oauth.Exchange(ctx, refreshReq); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
}

func TestOAuthService_UserInfo(t *testing.T) {
	oauth, tokens, _ := newOAuthEnv(t)

	token, err := tokens.IssueAccessToken(tokens.config.OAuth.ResourceOwner)
	require.NoError(t, err)

	info, err := oauth.UserInfo(token)
	require.NoError(t, err)
	assert.Equal(t, "gateway-owner", info.Subject)
	assert.Equal(t, "owner@example.com", info.Email)
	assert.True(t, info.EmailVerified)

	_, err = oauth.UserInfo("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOAuthService_AuthCodeExpires(t *testing.T) {
	oauth, _, cache := newOAuthEnv(t)
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }

	req, verifier := validAuthorizeRequest(t)
	code := authorizeAndExtractCode(t, oauth, req)

	// Past the five-minute staging TTL the code is gone.
	cache.now = func() time.Time { return base.Add(6 * time.Minute) }

	_, err := oauth.Exchange(ctx, models.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "gpt-actions-client",
		ClientSecret: "test-client-secret",
		Code:         code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: verifier,
	})
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestOAuthService_ScopeFieldsParsing(t *testing.T) {
	oauth, _, _ := newOAuthEnv(t)

	req, _ := validAuthorizeRequest(t)
	req.Scope = strings.Join([]string{"openid", "profile", "email"}, " ")

	_, err := oauth.Authorize(context.Background(), req)
	assert.NoError(t, err)
}
