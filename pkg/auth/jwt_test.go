package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.GenerateToken("u1", "alice")
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	signed, err := NewTokens("secret-a").GenerateToken("u1", "alice")
	require.NoError(t, err)

	_, err = NewTokens("secret-b").ValidateToken(signed)
	assert.Error(t, err)
}
