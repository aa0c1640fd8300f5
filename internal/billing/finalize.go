package billing

import (
	"context"
	"strings"
	"time"

	couponEngine "github.com/ledgerbase/billing/internal/coupon"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Numberer formats and allocates the next invoice number for an invoicing
// entity, the way the teacher's GetNextInvoiceNumber mints a tenant-scoped
// sequence, except scoped per invoicing entity per spec.md §4.7 point 4.
type Numberer interface {
	NextInvoiceNumber(ctx context.Context, tenantID, invoicingEntityID string) (string, error)
}

// OutboxWriter is the narrow dependency Finalizer needs to record the
// InvoiceFinalized event transactionally (C10).
type OutboxWriter interface {
	Write(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) error
}

// CouponLedger is the narrow coupon-consumption port Finalizer needs;
// coupon.Repository satisfies it directly.
type CouponLedger interface {
	IncrementRedemption(ctx context.Context, tenantID, appliedCouponID string, amountApplied decimal.Decimal) error
}

// Finalizer runs finalize_invoice (spec.md §4.7): a last recompute, credit
// application, numbering, coupon consumption, and the Draft→Finalized
// transition, all inside the caller's single transaction.
type Finalizer struct {
	composer   *Composer
	invoices   invoice.Repository
	customers  customer.Repository
	numberer   Numberer
	coupons    CouponLedger
	outbox     OutboxWriter
	sellerName string
}

func NewFinalizer(composer *Composer, invoices invoice.Repository, customers customer.Repository, numberer Numberer, coupons CouponLedger, outbox OutboxWriter, sellerName string) *Finalizer {
	return &Finalizer{composer: composer, invoices: invoices, customers: customers, numberer: numberer, coupons: coupons, outbox: outbox, sellerName: sellerName}
}

// snapshotParties freezes the seller and customer details an invoice
// shows forever once finalized (spec.md §3 "snapshots", invariant 3:
// non-null at finalization; §4.7 point 9: independent of later edits to
// either record).
func (f *Finalizer) snapshotParties(inv *invoice.Invoice, cust *customer.Customer) {
	inv.SellerDetails = &invoice.PartySnapshot{
		Name:    f.sellerName,
		Country: f.composer.sellerCountry,
	}
	inv.CustomerDetails = &invoice.PartySnapshot{
		Name:      cust.Alias,
		Country:   cust.BillingAddress.Country,
		Address:   formatAddress(cust.BillingAddress),
		VATNumber: cust.VATNumber,
	}
}

func formatAddress(a customer.Address) string {
	var parts []string
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Finalize executes the six finalize_invoice steps of spec.md §4.7 against
// an invoice already loaded under SELECT FOR UPDATE by the caller.
func (f *Finalizer) Finalize(ctx context.Context, tenantID, invoicingEntityID string, inv *invoice.Invoice, cust *customer.Customer, in Input) error {
	if inv.Status != types.InvoiceStatusDraft {
		return ierr.NewError("invoice is not in draft status").
			WithHint("only draft invoices can be finalized").
			Mark(ierr.ErrInvalidOperation).Err()
	}

	// Step 2: recompute lines one last time for freshness.
	if err := f.composer.RefreshInvoiceData(ctx, inv, in); err != nil {
		return err
	}

	// Step 3: apply credits against the customer's balance, one ledger
	// entry linked to the invoice.
	if inv.AppliedCreditCents > 0 {
		if err := f.customers.AdjustBalance(ctx, tenantID, cust.ID, -inv.AppliedCreditCents); err != nil {
			return err
		}
	}

	// Step 4: mint the invoice number from the invoicing entity's
	// sequence.
	number, err := f.numberer.NextInvoiceNumber(ctx, tenantID, invoicingEntityID)
	if err != nil {
		return err
	}
	inv.InvoiceNumber = number

	// Step 5: refresh each applied coupon's consumption state. Recompute
	// the same coupon pass the refreshed lines produced so each
	// AppliedCoupon gets its exact share of the discount recorded
	// (spec.md §4.7 point 5, invariant 8).
	preDiscountSubtotal := inv.SubtotalCents
	couponResult := couponEngine.ApplyCoupons(preDiscountSubtotal, inv.Currency, in.PlanVersion.PlanID, in.InvoiceDate, in.AppliedCoupons)
	for _, applied := range couponResult.Applied {
		if applied.DiscountCents == 0 {
			continue
		}
		amount := decimal.NewFromInt(applied.DiscountCents).Shift(-types.GetCurrencyPrecision(inv.Currency))
		if err := f.coupons.IncrementRedemption(ctx, tenantID, applied.AppliedCouponID, amount); err != nil {
			return err
		}
	}

	// Step 6: freeze the seller/customer snapshots, Draft -> Finalized,
	// emit the outbox event.
	f.snapshotParties(inv, cust)
	now := time.Now()
	inv.Status = types.InvoiceStatusFinalized
	inv.FinalizedAt = &now
	inv.IssuedAt = &now

	if err := f.invoices.Update(ctx, inv); err != nil {
		return err
	}

	if f.outbox != nil {
		return f.outbox.Write(ctx, tenantID, "invoice.finalized", inv.ID, nil)
	}
	return nil
}

// FinalizeAdjustment finalizes a standalone adjustment invoice whose
// lines were priced directly by the caller (ComposeSlotAdjustment)
// rather than composed from a subscription's full attached components.
// It mints the invoice number, freezes the snapshots and flips the
// Draft->Finalized transition like Finalize, but skips the recompute/
// credit/coupon steps so it never touches the subscription's own
// current-period invoice.
func (f *Finalizer) FinalizeAdjustment(ctx context.Context, tenantID, invoicingEntityID string, inv *invoice.Invoice, cust *customer.Customer) error {
	if inv.Status != types.InvoiceStatusDraft {
		return ierr.NewError("invoice is not in draft status").
			WithHint("only draft invoices can be finalized").
			Mark(ierr.ErrInvalidOperation).Err()
	}

	number, err := f.numberer.NextInvoiceNumber(ctx, tenantID, invoicingEntityID)
	if err != nil {
		return err
	}
	inv.InvoiceNumber = number

	f.snapshotParties(inv, cust)
	now := time.Now()
	inv.Status = types.InvoiceStatusFinalized
	inv.FinalizedAt = &now
	inv.IssuedAt = &now

	if err := f.invoices.Update(ctx, inv); err != nil {
		return err
	}
	if f.outbox != nil {
		return f.outbox.Write(ctx, tenantID, "invoice.finalized", inv.ID, nil)
	}
	return nil
}

// CreateAndFinalizeAdjustment persists and finalizes a standalone
// adjustment invoice in one step, mirroring CreateAndFinalize.
func (f *Finalizer) CreateAndFinalizeAdjustment(ctx context.Context, tenantID, invoicingEntityID string, inv *invoice.Invoice, cust *customer.Customer) error {
	if err := f.invoices.Create(ctx, inv); err != nil {
		return err
	}
	return f.FinalizeAdjustment(ctx, tenantID, invoicingEntityID, inv, cust)
}

// CreateAndFinalize persists a freshly composed invoice and immediately
// finalizes it, the single step the subscription lifecycle engine needs
// for activation, renewal and terminal arrear invoices (spec.md §4.8: "compose
// new invoice via C7" with no intervening draft review).
func (f *Finalizer) CreateAndFinalize(ctx context.Context, tenantID, invoicingEntityID string, inv *invoice.Invoice, cust *customer.Customer, in Input) error {
	if err := f.invoices.Create(ctx, inv); err != nil {
		return err
	}
	return f.Finalize(ctx, tenantID, invoicingEntityID, inv, cust, in)
}
