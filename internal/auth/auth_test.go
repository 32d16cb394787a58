package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewService("test-secret")
	service.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	token, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), token.Expiration, time.Minute)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, TestAPIKey, claims.ClientID)
	assert.Contains(t, claims.Permissions, "trade")
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	service := NewService("test-secret")
	service.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	_, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.GenerateToken(Credentials{APIKey: "unknown", APISecret: TestAPISecret})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService("issuer-secret")
	issuer.RegisterAPICredentials(TestAPIKey, TestAPISecret)
	token, err := issuer.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)

	verifier := NewService("different-secret")
	_, err = verifier.ValidateToken(token.Token)
	assert.Error(t, err)

	_, err = verifier.ValidateToken("not-a-token")
	assert.Error(t, err)
}
