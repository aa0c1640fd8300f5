package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/meter"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

type MeterRepository struct {
	db *DB
}

func NewMeterRepository(db *DB) *MeterRepository {
	return &MeterRepository{db: db}
}

func (r *MeterRepository) Get(ctx context.Context, tenantID, id string) (*meter.Metric, error) {
	var m meter.Metric
	if err := getSnapshot(ctx, r.db, "meters", tenantID, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MeterRepository) GetByCode(ctx context.Context, tenantID, code string) (*meter.Metric, error) {
	rows, err := selectSnapshots(ctx, r.db,
		`SELECT data FROM meters WHERE tenant_id = $1 AND data->>'Code' = $2 LIMIT 1`, tenantID, code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("meter", code)
	}
	var m meter.Metric
	if err := json.Unmarshal(rows[0], &m); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	return &m, nil
}

func (r *MeterRepository) List(ctx context.Context, tenantID string) ([]*meter.Metric, error) {
	rows, err := selectSnapshots(ctx, r.db,
		`SELECT data FROM meters WHERE tenant_id = $1 ORDER BY (data->>'created_at')::timestamptz`, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*meter.Metric, 0, len(rows))
	for _, raw := range rows {
		var m meter.Metric
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &m)
	}
	return out, nil
}
