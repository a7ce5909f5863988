package auth

import (
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *models.User {
	return &models.User{
		ID:    "11111111-1111-1111-1111-111111111111",
		Email: "user@example.com",
		Role:  "user",
	}
}

func TestGenerateAndValidateSessionToken(t *testing.T) {
	tm := NewTokenManager("test-secret-that-is-long-enough", time.Hour)

	token, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.NotEmpty(t, claims.ID, "token should carry a JTI")
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret-that-is-long-enough", time.Hour)
	other := NewTokenManager("a-completely-different-secret!!", time.Hour)

	token, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret-that-is-long-enough", -time.Minute)

	token, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret-that-is-long-enough", time.Hour)

	_, err := tm.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestTokensAreUnique(t *testing.T) {
	tm := NewTokenManager("test-secret-that-is-long-enough", time.Hour)

	first, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)
	second, err := tm.GenerateSessionToken(testUser())
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "JTI should make every token distinct")
}
