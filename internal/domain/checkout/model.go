// Package checkout models CheckoutSession, the hosted-page handoff that
// creates a Subscription and/or collects a payment method (spec.md §3).
package checkout

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/types"
)

// Session is a time-boxed, single-use checkout flow.
type Session struct {
	ID               string
	CustomerID       string
	PlanVersionID    *string
	SuccessURL       string
	CancelURL        string
	ExpiresAt        time.Time
	Status           types.CheckoutSessionStatus
	SubscriptionID   *string
	PaymentMethodID  *string
	ProviderSessionID string

	types.BaseModel
}

// Expired reports whether the session has passed its expiry without
// completing (spec.md §3: terminal statuses include expired).
func (s *Session) Expired(now time.Time) bool {
	return !s.Status.IsTerminal() && now.After(s.ExpiresAt)
}

// Repository is the storage port for checkout sessions (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Session, error)
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	// ListExpiring returns non-terminal sessions whose ExpiresAt is at or
	// before asOf, for the due-event scheduler's mark_expired_batch pass
	// (spec.md §4.8).
	ListExpiring(ctx context.Context, tenantID string, asOf time.Time, limit int) ([]*Session, error)
}
