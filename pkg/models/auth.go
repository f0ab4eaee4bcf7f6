package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the claim set carried by access tokens issued to
// GPT Actions clients. Registered claims hold sub/iss/aud/exp/iat/jti.
// Type is never set on issued access tokens; it captures the refresh
// discriminator during parsing so a refresh token cannot verify as an
// access token.
type AccessTokenClaims struct {
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Type          string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carries the fixed "refresh" type discriminator so a
// refresh token can never be accepted where an access token is expected,
// and vice versa.
type RefreshTokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

const RefreshTokenType = "refresh"

// AuthorizationCodeBinding is the state persisted against an authorization
// code between /oauth/authorize and /oauth/token. Consumed exactly once.
type AuthorizationCodeBinding struct {
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	CodeChallenge string `json:"code_challenge"`
	Scope         string `json:"scope"`
	IssuedAt      int64  `json:"issued_at"`
}

// AuthorizeRequest holds the query parameters of GET /oauth/authorize.
type AuthorizeRequest struct {
	ClientID            string `form:"client_id" binding:"required"`
	RedirectURI         string `form:"redirect_uri" binding:"required,url"`
	Scope               string `form:"scope" binding:"required"`
	State               string `form:"state" binding:"required"`
	CodeChallenge       string `form:"code_challenge" binding:"required"`
	CodeChallengeMethod string `form:"code_challenge_method" binding:"required"`
	ResponseType        string `form:"response_type" binding:"required"`
}

// TokenRequest is the body of POST /oauth/token, accepted as form or JSON.
type TokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type" binding:"required"`
	ClientID     string `form:"client_id" json:"client_id" binding:"required"`
	ClientSecret string `form:"client_secret" json:"client_secret" binding:"required"`
	Code         string `form:"code" json:"code,omitempty"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri,omitempty"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier,omitempty"`
	RefreshToken string `form:"refresh_token" json:"refresh_token,omitempty"`
}

// TokenResponse is the successful response of POST /oauth/token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// UserInfo is the OIDC userinfo response for a verified access token.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// JWK is a public signing key in RFC 7517 shape. Only RSA keys are
// published; the gateway signs with a single active RS256 key pair.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// AuthContext is the resolved caller identity attached to every gateway
// request: either the static GPT Actions API key or an OAuth subject.
type AuthContext struct {
	Mode          string `json:"mode"` // "api-key" or "oauth"
	Subject       string `json:"subject"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

type RateLimitInfo struct {
	Limit      int   `json:"limit"`
	Remaining  int   `json:"remaining"`
	ResetTime  int64 `json:"reset_time"`
	RetryAfter int64 `json:"retry_after,omitempty"`
}
