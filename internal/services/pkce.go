package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// PKCECodeChallengeMethod is the only accepted transform. Plain challenges
// are rejected outright, never silently downgraded.
const PKCECodeChallengeMethod = "S256"

// ComputeCodeChallenge returns BASE64URL(SHA256(verifier)) per RFC 7636.
func ComputeCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge recomputes the S256 challenge for the presented
// verifier and compares in constant time.
func VerifyCodeChallenge(verifier, challenge string) bool {
	computed := ComputeCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// GenerateAuthorizationCode produces an opaque high-entropy code of
// byteLength random bytes, hex encoded.
func GenerateAuthorizationCode(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = 32
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateCodeVerifier produces a random PKCE verifier, base64url encoded.
func GenerateCodeVerifier(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = 96
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
