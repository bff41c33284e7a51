package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour, 0)
	token, expires, err := issuer.Issue(&User{ID: 42, Email: "admin@test.com", Role: "admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	p, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "admin@test.com", p.Email)
	assert.Equal(t, "admin", p.Role)
}

func TestTokenRejectsExpiredAndForeign(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, 0)
	token, _, err := issuer.Issue(&User{ID: 1, Role: "customer"})
	require.NoError(t, err)

	later := NewTokenIssuer("secret", time.Minute, 0)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenIssuer("other", time.Minute, 0).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetTokenIsSeparateFromAccessToken(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour, 15*time.Minute)
	u := &User{ID: 7, Email: "customer@test.com", Role: "customer"}

	reset, jti, expires, err := issuer.IssueReset(u)
	require.NoError(t, err)
	require.NotEmpty(t, jti)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expires, time.Minute)

	id, gotJTI, err := issuer.ParseReset(reset)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, jti, gotJTI)

	_, err = issuer.Parse(reset)
	assert.ErrorIs(t, err, ErrInvalidToken, "reset token must not authenticate requests")

	access, _, err := issuer.Issue(u)
	require.NoError(t, err)
	_, _, err = issuer.ParseReset(access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token must not reset passwords")

	later := NewTokenIssuer("secret", time.Hour, 15*time.Minute)
	later.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, _, err = later.ParseReset(reset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
