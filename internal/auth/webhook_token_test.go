package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrips(t *testing.T) {
	s := NewWebhookTokenSigner("shared-secret", "billing-webhook-relay")

	token, err := s.Sign("tenant_1", "env_1", "evt_123", time.Minute)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant_1", claims.TenantID)
	assert.Equal(t, "env_1", claims.EnvironmentID)
	assert.Equal(t, "evt_123", claims.EventID)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	s := NewWebhookTokenSigner("shared-secret", "billing-webhook-relay")

	token, err := s.Sign("tenant_1", "env_1", "evt_123", -time.Minute)
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.Error(t, err)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	s1 := NewWebhookTokenSigner("secret-one", "billing-webhook-relay")
	s2 := NewWebhookTokenSigner("secret-two", "billing-webhook-relay")

	token, err := s1.Sign("tenant_1", "env_1", "evt_123", time.Minute)
	require.NoError(t, err)

	_, err = s2.Verify(token)
	require.Error(t, err)
}
