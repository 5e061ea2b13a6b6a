package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(&TokenConfig{
		SymmetricKey: "test-symmetric-key-32-bytes-ok!!",
		Issuer:       "test-issuer",
		TokenTTL:     time.Hour,
	})
	require.NoError(t, err)
	return tm
}

func TestNewTokenManagerRejectsWrongKeyLength(t *testing.T) {
	_, err := NewTokenManager(&TokenConfig{SymmetricKey: "too-short"})
	assert.Error(t, err)
}

func TestGenerateAndVerifyTokenRoundTrip(t *testing.T) {
	tm := testTokenManager(t)
	user := &User{ID: "u1", Email: "a@b.com", Username: "alice", Role: RoleUser}

	token, claims, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "u1", claims.UserID)

	verified, err := tm.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims.TokenID, verified.TokenID)
	assert.Equal(t, "alice", verified.Username)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	tm := testTokenManager(t)
	_, err := tm.VerifyToken("not-a-real-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsExpiredToken(t *testing.T) {
	tm, err := NewTokenManager(&TokenConfig{
		SymmetricKey: "test-symmetric-key-32-bytes-ok!!",
		Issuer:       "test-issuer",
		TokenTTL:     -time.Hour,
	})
	require.NoError(t, err)
	token, _, err := tm.GenerateToken(&User{ID: "u1", Role: RoleUser})
	require.NoError(t, err)

	_, err = tm.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestHasPermissionGrantsAdminEverything(t *testing.T) {
	admin := &User{Role: RoleAdmin}
	assert.True(t, admin.HasPermission(RoleUser))
	assert.True(t, admin.HasPermission(RoleService))
}

func TestHasPermissionRequiresExactMatchForNonAdmin(t *testing.T) {
	user := &User{Role: RoleUser}
	assert.True(t, user.HasPermission(RoleUser))
	assert.False(t, user.HasPermission(RoleAdmin))
}

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	assert.NoError(t, VerifyPassword("correct horse battery staple", hash))
	assert.ErrorIs(t, VerifyPassword("wrong password", hash), ErrMismatchedPassword)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	assert.ErrorIs(t, VerifyPassword("anything", "not-a-valid-hash"), ErrInvalidHash)
}
