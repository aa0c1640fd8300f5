// Package customer models the Customer aggregate (spec.md §3).
package customer

import (
	"context"

	"github.com/ledgerbase/billing/internal/types"
)

// Address is a postal address attached to a customer for billing/shipping
// and tax-jurisdiction purposes.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string // ISO 3166-1 alpha-2
}

// PaymentMethod is a tokenized payment instrument registered with a
// provider (spec.md §3, §6).
type PaymentMethod struct {
	ID                    string
	Type                  string
	ProviderConnectionID  string
	ExternalID            string
	IsDefault             bool
}

// Customer is identified by a tenant-unique ID and optional alias; it
// carries currency, addresses, VAT, invoicing entity and balance
// (spec.md §3).
type Customer struct {
	ID                string
	Alias             string
	Currency          string
	BillingAddress    Address
	ShippingAddress   Address
	VATNumber         string
	VATFormatValid    bool
	TaxExempt         bool
	CustomTaxRate     *float64
	InvoicingEntityID string
	// BalanceCents is the customer's prepaid credit balance in minor units
	// (spec.md §4.7 point 8: applied_credits draws down this balance).
	BalanceCents    int64
	PaymentMethods  []PaymentMethod
	DefaultPaymentMethodID string

	types.BaseModel
}

// DefaultPaymentMethod returns the customer's default payment method, if
// any is configured.
func (c *Customer) DefaultPaymentMethod() (PaymentMethod, bool) {
	for _, pm := range c.PaymentMethods {
		if pm.ID == c.DefaultPaymentMethodID {
			return pm, true
		}
	}
	return PaymentMethod{}, false
}

// HasPaymentMethod reports whether the customer has at least one payment
// method on file, used by the EndTrial cycle action (spec.md §4.8).
func (c *Customer) HasPaymentMethod() bool {
	return len(c.PaymentMethods) > 0
}

// Repository is the storage port for customers (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Customer, error)
	Update(ctx context.Context, customer *Customer) error
	// AdjustBalance applies a signed delta (in minor units) to the
	// customer's balance inside the caller's transaction.
	AdjustBalance(ctx context.Context, tenantID, customerID string, deltaCents int64) error
}
