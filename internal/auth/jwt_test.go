package auth

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	v := NewVerifier("secret")

	tok, err := v.CreateAccessToken("user-1", "ana@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := v.ParseValidate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestParseValidateRejects(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := v.CreateAccessToken("user-1", "", -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewVerifier("other").CreateAccessToken("user-1", "", time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noSub, err := v.CreateAccessToken("", "", time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":   "not-a-token",
		"expired":   expired,
		"wrong key": otherKey,
		"no expiry": noExp,
		"no sub":    noSub,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.ParseValidate(tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}
