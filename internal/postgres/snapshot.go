package postgres

import (
	"context"
	"encoding/json"

	ierr "github.com/ledgerbase/billing/internal/errors"
)

// getSnapshot loads and unmarshals a single row's `data` column. Every
// repository in this package stores its aggregate this way: the nested
// value objects (addresses, line items, components) don't earn their
// own normalized tables at this scale, so the full aggregate travels as
// one JSON snapshot per row, the same tradeoff the pack's ent schemas
// make for metadata/line-item fields by typing those columns JSON.
func getSnapshot(ctx context.Context, db *DB, table, tenantID, id string, out interface{}) error {
	var raw []byte
	err := db.q(ctx).GetContext(ctx, &raw,
		"SELECT data FROM "+table+" WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		if isNoRows(err) {
			return notFound(table, id)
		}
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ierr.WithError(err).WithHintf("corrupt %s snapshot", table).Mark(ierr.ErrSerde).Err()
	}
	return nil
}

// putSnapshot upserts a row's `data` column by (tenant_id, id).
func putSnapshot(ctx context.Context, db *DB, table, tenantID, id string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	_, err = db.q(ctx).ExecContext(ctx, `
		INSERT INTO `+table+` (tenant_id, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, tenantID, id, raw)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

// selectSnapshots runs a filtered query selecting a single `data` column
// and returns the raw JSON blobs for the caller to unmarshal, since each
// repository's element type differs.
func selectSnapshots(ctx context.Context, db *DB, query string, args ...interface{}) ([][]byte, error) {
	var rows [][]byte
	if err := db.q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return rows, nil
}
