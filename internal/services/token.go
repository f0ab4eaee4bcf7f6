package services

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// TokenService signs and verifies the gateway's access and refresh tokens
// with a single active RSA key pair. Signing-key misconfiguration is fatal
// at construction time; verification failures are plain errors.
type TokenService struct {
	config     *config.Config
	logger     *logrus.Logger
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	method     jwt.SigningMethod
	now        func() time.Time
}

func NewTokenService(cfg *config.Config, logger *logrus.Logger) (*TokenService, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.OAuth.JWTPrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.OAuth.JWTPublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}

	method := jwt.GetSigningMethod(cfg.OAuth.JWTAlgorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown JWT algorithm %q", cfg.OAuth.JWTAlgorithm)
	}

	return &TokenService{
		config:     cfg,
		logger:     logger,
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     method,
		now:        time.Now,
	}, nil
}

// IssueAccessToken builds the OIDC claim set for the configured resource
// owner and signs it with the active key, tagging the header with the kid.
func (s *TokenService) IssueAccessToken(owner config.ResourceOwnerConfig) (string, error) {
	now := s.now()
	claims := &models.AccessTokenClaims{
		Email:         owner.Email,
		Name:          owner.Name,
		EmailVerified: owner.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner.Subject,
			Issuer:    s.config.OAuth.Issuer,
			Audience:  jwt.ClaimStrings{s.config.OAuth.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.OAuth.AccessTokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	return s.sign(claims)
}

// IssueRefreshToken signs a longer-lived token carrying the "refresh" type
// discriminator.
func (s *TokenService) IssueRefreshToken(subject string) (string, error) {
	now := s.now()
	claims := &models.RefreshTokenClaims{
		Type: models.RefreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.OAuth.Issuer,
			Audience:  jwt.ClaimStrings{s.config.OAuth.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.OAuth.RefreshTokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	return s.sign(claims)
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.method, claims)
	token.Header["kid"] = s.config.OAuth.JWTKid

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, issuer, audience, expiry (with the
// configured clock-skew leeway) and the algorithm allow-list. A token
// carrying the refresh discriminator is rejected even when the signature
// is valid.
func (s *TokenService) VerifyAccessToken(tokenString string) (*models.AccessTokenClaims, error) {
	claims := &models.AccessTokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}

	if claims.Type != "" {
		return nil, fmt.Errorf("token is not an access token")
	}
	return claims, nil
}

// VerifyRefreshToken is VerifyAccessToken plus the type-discriminator
// check that blocks token-confusion attacks.
func (s *TokenService) VerifyRefreshToken(tokenString string) (*models.RefreshTokenClaims, error) {
	claims := &models.RefreshTokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}

	if claims.Type != models.RefreshTokenType {
		return nil, fmt.Errorf("token is not a refresh token")
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.publicKey, nil
		},
		jwt.WithValidMethods([]string{s.config.OAuth.JWTAlgorithm}),
		jwt.WithIssuer(s.config.OAuth.Issuer),
		jwt.WithAudience(s.config.OAuth.Audience),
		jwt.WithLeeway(s.config.OAuth.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token claims")
	}
	return nil
}

// JWKS publishes the active public key in RFC 7517 shape for relying
// parties.
func (s *TokenService) JWKS() models.JWKS {
	return models.JWKS{
		Keys: []models.JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: s.config.OAuth.JWTAlgorithm,
				Kid: s.config.OAuth.JWTKid,
				N:   base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.publicKey.E)).Bytes()),
			},
		},
	}
}
