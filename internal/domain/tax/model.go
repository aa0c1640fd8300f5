// Package tax models the manually configured tax rates C6's
// ManualTaxEngine resolves against (spec.md §3, §4.6).
package tax

import (
	"context"

	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Rate is one named tax rate scoped to a country and optional region
// (spec.md §4.6: "resolution order: customer override, then
// country+region rate, then country rate, then none").
type Rate struct {
	ID      string
	Name    string
	Country string // ISO 3166-1 alpha-2
	Region  string // empty matches any region within Country
	Percent decimal.Decimal

	types.BaseModel
}

// Repository is the storage port for tax rates (C11).
type Repository interface {
	ListForCountry(ctx context.Context, tenantID, country string) ([]*Rate, error)
}
