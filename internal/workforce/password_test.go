// internal/workforce/password_test.go
package workforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, salt, err := hashPassword("SecurePass123!")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.NotEmpty(t, salt)

	ok, err := verifyPassword("SecurePass123!", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("WrongPass123!", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSaltsEveryCall(t *testing.T) {
	first, firstSalt, err := hashPassword("same-input")
	require.NoError(t, err)
	second, secondSalt, err := hashPassword("same-input")
	require.NoError(t, err)

	assert.NotEqual(t, firstSalt, secondSalt)
	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordRejectsMalformedEncoding(t *testing.T) {
	_, err := verifyPassword("x", "not-base64!!!", "also-not-base64!!!")
	require.Error(t, err)
}
