package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	id := uuid.New()

	token, expires, err := issuer.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_Invalid(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, _, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		_, err := issuer.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := issuer.Verify(parts[0] + "." + parts[1] + "." + string(sig))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewTokenIssuer("another-secret", time.Hour)
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := SessionClaims{UserID: uuid.NewString()}
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := SessionClaims{UserID: uuid.NewString()}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("bad subject", func(t *testing.T) {
		claims := SessionClaims{UserID: "nope"}
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
