package service

import (
	"testing"
	"time"

	"pickupd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.IssueToken("p1", model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.PlayerID)
	assert.True(t, claims.IsAdmin())
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret")
	other := NewAuthService("other")

	foreign, err := other.IssueToken("p1", model.RolePlayer, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("p1", model.RolePlayer, -time.Minute)
	require.NoError(t, err)
	anonymous, err := auth.IssueToken("", model.RolePlayer, time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
		"no player id": anonymous,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
