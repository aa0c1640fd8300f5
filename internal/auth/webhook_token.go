// Package auth implements the one sliver of the (otherwise out-of-scope,
// spec.md §9) inbound RPC surface this engine still needs of its own: a
// verifiable identity for inbound webhook ingress, grounded on the
// teacher's HS256 issuance style (internal/auth, bugielektrik-library's
// internal/infrastructure/auth/jwt.go).
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

// WebhookClaims identifies the tenant/environment and event a provider
// webhook callback claims to carry, signed with a secret shared with that
// provider integration so ingress can trust tenant_id without re-deriving
// it from the raw payload.
type WebhookClaims struct {
	TenantID      string `json:"tenant_id"`
	EnvironmentID string `json:"environment_id"`
	EventID       string `json:"event_id"`
	jwt.RegisteredClaims
}

// WebhookTokenSigner issues and verifies WebhookClaims tokens for one
// provider integration's shared secret.
type WebhookTokenSigner struct {
	secret []byte
	issuer string
}

func NewWebhookTokenSigner(secret, issuer string) *WebhookTokenSigner {
	return &WebhookTokenSigner{secret: []byte(secret), issuer: issuer}
}

// Sign mints a short-lived token a provider-facing caller (our own
// webhook relay, not the provider itself) attaches to a forwarded
// callback so ingress can trust its tenant/event identity.
func (s *WebhookTokenSigner) Sign(tenantID, environmentID, eventID string, ttl time.Duration) (string, error) {
	claims := &WebhookClaims{
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		EventID:       eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Subject:   eventID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", ierr.WithError(err).WithHint("failed to sign webhook token").Mark(ierr.ErrInternal).Err()
	}
	return signed, nil
}

// Verify parses and validates a token minted by Sign, rejecting expired
// or mis-signed tokens.
func (s *WebhookTokenSigner) Verify(tokenString string) (*WebhookClaims, error) {
	var claims WebhookClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewError("unexpected signing method").Mark(ierr.ErrUnauthenticated).Err()
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ierr.WithError(err).WithHint("webhook token is invalid or expired").Mark(ierr.ErrUnauthenticated).Err()
	}
	return &claims, nil
}
