package policy

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproxy/warden/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user": map[string]interface{}{"id": "u-123", "role": "admin"},
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestIdentityVerifier_MissingToken(t *testing.T) {
	verifier := NewIdentityVerifier(testSecret)
	ep := &models.Endpoint{ID: 1}

	t.Run("no header", func(t *testing.T) {
		dec, err := verifier.Evaluate(context.Background(), testRequest(), ep)
		require.NoError(t, err)
		assert.Equal(t, 401, dec.Status)
		assert.Equal(t, "No token, authorization denied", dec.Body["message"])
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := testRequest()
		req.AuthHeader = "Basic dXNlcjpwYXNz"
		dec, err := verifier.Evaluate(context.Background(), req, ep)
		require.NoError(t, err)
		assert.Equal(t, 401, dec.Status)
		assert.Equal(t, "No token, authorization denied", dec.Body["message"])
	})

	t.Run("empty bearer", func(t *testing.T) {
		req := testRequest()
		req.AuthHeader = "Bearer "
		dec, err := verifier.Evaluate(context.Background(), req, ep)
		require.NoError(t, err)
		assert.Equal(t, 401, dec.Status)
	})
}

func TestIdentityVerifier_ExpiredToken(t *testing.T) {
	verifier := NewIdentityVerifier(testSecret)
	req := testRequest()
	req.AuthHeader = "Bearer " + signToken(t, testSecret, -time.Hour)

	dec, err := verifier.Evaluate(context.Background(), req, &models.Endpoint{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 401, dec.Status)
	assert.Equal(t, "Token has expired", dec.Body["message"])
}

func TestIdentityVerifier_InvalidSignature(t *testing.T) {
	verifier := NewIdentityVerifier(testSecret)
	req := testRequest()
	req.AuthHeader = "Bearer " + signToken(t, "wrong-secret", time.Hour)

	dec, err := verifier.Evaluate(context.Background(), req, &models.Endpoint{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 403, dec.Status)
	assert.Equal(t, "Token is not valid", dec.Body["error"])
}

func TestIdentityVerifier_ValidTokenAttachesIdentity(t *testing.T) {
	verifier := NewIdentityVerifier(testSecret)
	req := testRequest()
	req.AuthHeader = "Bearer " + signToken(t, testSecret, time.Hour)

	dec, err := verifier.Evaluate(context.Background(), req, &models.Endpoint{ID: 1})
	require.NoError(t, err)
	assert.True(t, dec.Allow)
	require.NotNil(t, req.Identity)
	assert.Equal(t, "u-123", req.Identity.Subject)
	assert.Equal(t, "admin", req.Identity.Role)
	assert.Equal(t, "admin", req.RoleKey())
	assert.Equal(t, "u-123", req.SubjectKey())
}
