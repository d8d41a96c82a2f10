package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docseq/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	user := &appctx.UserContext{
		UserID:      "u1",
		Email:       "u1@example.com",
		Permissions: []string{"sequence:read"},
		OrgID:       "org-a",
		OrgIDs:      []string{"org-a", "org-b"},
		TimeZone:    "Asia/Tokyo",
	}

	token, expiresAt, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)
	assert.Equal(t, user.OrgID, got.OrgID)
	assert.Equal(t, user.OrgIDs, got.OrgIDs)
	assert.Equal(t, "Asia/Tokyo", got.TimeZone)
	assert.False(t, got.IsAdmin)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	other := NewJWTService(DefaultJWTConfig("another-secret"))

	token, _, err := other.GenerateAccessToken(&appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	expired := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "docseq", AccessTokenTTL: -time.Minute})
	token, _, err = expired.GenerateAccessToken(&appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
