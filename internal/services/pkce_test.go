package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCodeChallenge(t *testing.T) {
	verifier, err := GenerateCodeVerifier(0)
	require.NoError(t, err)

	challenge := ComputeCodeChallenge(verifier)

	assert.True(t, VerifyCodeChallenge(verifier, challenge))
	assert.False(t, VerifyCodeChallenge(verifier+"x", challenge))
	assert.False(t, VerifyCodeChallenge(verifier, challenge[:len(challenge)-1]))

	other, err := GenerateCodeVerifier(0)
	require.NoError(t, err)
	assert.False(t, VerifyCodeChallenge(other, challenge))
}

func TestGenerateAuthorizationCode(t *testing.T) {
	first, err := GenerateAuthorizationCode(32)
	require.NoError(t, err)
	assert.Len(t, first, 64) // hex doubles the byte length

	second, err := GenerateAuthorizationCode(32)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Non-positive lengths fall back to the default.
	fallback, err := GenerateAuthorizationCode(0)
	require.NoError(t, err)
	assert.Len(t, fallback, 64)
}
