package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/tax"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

type TaxRepository struct {
	db *DB
}

func NewTaxRepository(db *DB) *TaxRepository {
	return &TaxRepository{db: db}
}

func (r *TaxRepository) ListForCountry(ctx context.Context, tenantID, country string) ([]*tax.Rate, error) {
	rows, err := selectSnapshots(ctx, r.db,
		`SELECT data FROM tax_rates WHERE tenant_id = $1 AND data->>'Country' = $2`, tenantID, country)
	if err != nil {
		return nil, err
	}
	out := make([]*tax.Rate, 0, len(rows))
	for _, raw := range rows {
		var rate tax.Rate
		if err := json.Unmarshal(raw, &rate); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &rate)
	}
	return out, nil
}
