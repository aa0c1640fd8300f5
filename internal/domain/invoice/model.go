// Package invoice models Invoice and LineItem, the output of the C7
// invoice composer (spec.md §3, §4.7).
package invoice

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// LineItemKind classifies a LineItem for display and accounting grouping
// (spec.md §4.7).
type LineItemKind string

const (
	LineKindRate           LineItemKind = "rate"
	LineKindSlot           LineItemKind = "slot"
	LineKindCapacityAdvance LineItemKind = "capacity_advance"
	LineKindCapacityOverage LineItemKind = "capacity_overage"
	LineKindUsage          LineItemKind = "usage"
	LineKindExtraRecurring LineItemKind = "extra_recurring"
	LineKindOneTime        LineItemKind = "one_time"
	LineKindMinimumTopUp   LineItemKind = "minimum_top_up"
)

// LineItem is one priced, period-scoped entry on an Invoice (spec.md §3).
type LineItem struct {
	ID            string
	ComponentID   *string
	Kind          LineItemKind
	Description   string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Quantity      decimal.Decimal
	UnitAmount    decimal.Decimal
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
	ProrationFactor *decimal.Decimal
}

// AppliedTax is one jurisdiction/rate entry in an invoice's tax breakdown
// (spec.md §4.6), aggregated by name, rate and exemption type.
type AppliedTax struct {
	Name          string
	Rate          decimal.Decimal
	TaxedCents    int64
	AmountCents   int64
	ExemptionType types.TaxExemptionType
}

// PartySnapshot freezes the billing-relevant details of an invoice's
// buyer or seller as they stood at finalization (spec.md §3 "snapshots":
// seller_details/customer_details). Later edits to the customer record
// or the merchant-of-record's own details must never change a finalized
// invoice's display (spec.md §4.7 point 9).
type PartySnapshot struct {
	Name      string
	Country   string
	Address   string
	VATNumber string
}

// Invoice is the periodic (or ad-hoc) bill generated for a subscription or
// a direct customer charge (spec.md §3).
type Invoice struct {
	ID             string
	InvoiceNumber  string
	CustomerID     string
	SubscriptionID *string
	Type           types.InvoiceType
	Status         types.InvoiceStatus
	PaymentStatus  types.InvoicePaymentStatus
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	IssuedAt       *time.Time
	DueAt          *time.Time
	FinalizedAt    *time.Time
	VoidedAt       *time.Time

	Lines []LineItem

	SubtotalCents          int64
	SubtotalRecurringCents int64
	DiscountCents     int64
	TaxCents          int64
	TotalCents        int64
	AppliedCreditCents int64
	AmountDueCents    int64
	AmountPaidCents   int64

	Taxes []AppliedTax

	AppliedCouponIDs []string

	// SellerDetails and CustomerDetails are nil until Finalize freezes
	// them (spec.md invariant 3: non-null on every finalized invoice).
	SellerDetails   *PartySnapshot
	CustomerDetails *PartySnapshot

	types.BaseModel
}

// IsMutable reports whether the invoice's line items may still be
// recomputed (spec.md §4.7: draft invoices only).
func (i *Invoice) IsMutable() bool {
	return i.Status.IsMutable()
}

// Repository is the storage port for invoices (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Invoice, error)
	Create(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv *Invoice) error
	ListDraftForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*Invoice, error)
}
