package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) (*AuthService, *TokenService) {
	t.Helper()
	cfg := testConfig(t)
	logger := testLogger()

	tokens, err := NewTokenService(cfg, logger)
	require.NoError(t, err)
	return NewAuthService(cfg, logger, tokens), tokens
}

func TestAuthService_ResolveIdentity(t *testing.T) {
	auth, tokens := newTestAuth(t)

	accessToken, err := tokens.IssueAccessToken(tokens.config.OAuth.ResourceOwner)
	require.NoError(t, err)
	refreshToken, err := tokens.IssueRefreshToken("gateway-owner")
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantMode string
		wantErr  bool
	}{
		{
			name:     "api key",
			header:   "Bearer test-gpt-actions-key",
			wantMode: "api-key",
		},
		{
			name:     "oauth access token",
			header:   "Bearer " + accessToken,
			wantMode: "oauth",
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "no bearer prefix",
			header:  "Basic dXNlcjpwYXNz",
			wantErr: true,
		},
		{
			name:    "unknown api key",
			header:  "Bearer not-the-key",
			wantErr: true,
		},
		{
			name:    "refresh token is not a credential",
			header:  "Bearer " + refreshToken,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := auth.ResolveIdentity(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, identity.Mode)
			assert.NotEmpty(t, identity.Subject)
		})
	}
}
