package auth

import (
	"testing"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:        "test-secret",
		Expiry:        5 * 24 * time.Hour,
		RefreshExpiry: 90 * 24 * time.Hour,
		Issuer:        "speaknowly-test",
	})
}

func TestIssuePairRoundTrip(t *testing.T) {
	m := newManager()
	user := &model.User{ID: 7, Email: "u1@example.com", IsStaff: true, TokenVersion: 3}

	pair, err := m.IssuePair(user)
	require.NoError(t, err)
	assert.Equal(t, 5*24*3600, pair.ExpiresIn)

	claims, err := m.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, model.RoleStaff, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, 3, claims.TokenVersion)

	_, err = m.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refresh, err := m.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
}

func TestExpiredToken(t *testing.T) {
	m := newManager()
	token, _, err := m.GenerateAccessToken(&model.User{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(6 * 24 * time.Hour) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestWrongSecret(t *testing.T) {
	token, _, err := newManager().GenerateAccessToken(&model.User{ID: 1, Email: "a@b.c"})
	require.NoError(t, err)

	other := NewJWTManager(JWTConfig{Secret: "other", Expiry: time.Hour})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodes(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)

	hash, err := HashCode(code)
	require.NoError(t, err)
	assert.True(t, VerifyCode(hash, code))
	assert.False(t, VerifyCode(hash, "abcdef"))
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword(hash, "correct horse"))
	assert.ErrorIs(t, VerifyPassword(hash, "wrong horse"), ErrPasswordMismatch)
}
