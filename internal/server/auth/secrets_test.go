package auth

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 200; i++ {
		otp, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, otp, OTPLength)

		n, err := strconv.Atoi(otp)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestOTPMatches(t *testing.T) {
	stored := "123456"
	empty := ""

	assert.True(t, OTPMatches(&stored, "123456"))
	assert.False(t, OTPMatches(&stored, "654321"))
	assert.False(t, OTPMatches(&stored, ""))
	assert.False(t, OTPMatches(nil, "123456"))
	assert.False(t, OTPMatches(&empty, ""))
}

func TestResetToken(t *testing.T) {
	token, hash, err := GenerateResetToken()
	require.NoError(t, err)

	assert.Len(t, token, 64)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, token, hash)
	assert.Equal(t, hash, HashResetToken(token))

	other, _, err := GenerateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateAPIKeySecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := GenerateAPIKeySecret()
		require.NoError(t, err)
		require.Len(t, secret, 64)
		require.False(t, seen[secret], "duplicate secret generated")
		seen[secret] = true
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, "secret1", hash)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
	assert.False(t, CheckPassword("not-a-hash", "secret1"))
}
