package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
	assert.False(t, VerifyPassword("correct horse battery staple", "not a hash"))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", "admin")
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken("secret", "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("secret", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
