package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerbase/billing/internal/domain/coupon"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/shopspring/decimal"
)

// CouponRepository stores coupons in `coupons` and their per-subscription
// consumption state in `applied_coupons`, both as JSON snapshots.
type CouponRepository struct {
	db *DB
}

func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Get(ctx context.Context, tenantID, id string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	if err := getSnapshot(ctx, r.db, "coupons", tenantID, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CouponRepository) ListAppliedForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*coupon.Detailed, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT jsonb_build_object('coupon', c.data, 'applied', a.data)
		FROM applied_coupons a
		JOIN coupons c ON c.tenant_id = a.tenant_id AND c.id = a.data->>'CouponID'
		WHERE a.tenant_id = $1 AND a.data->>'SubscriptionID' = $2
	`, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	out := make([]*coupon.Detailed, 0, len(rows))
	for _, raw := range rows {
		var d coupon.Detailed
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &d)
	}
	return out, nil
}

// IncrementRedemption locks both the coupon and its applied-coupon row,
// bumps their redemption counters and amount, and writes both back in the
// same transaction (spec.md §4.7 point 5, invariant 8).
func (r *CouponRepository) IncrementRedemption(ctx context.Context, tenantID, appliedCouponID string, amountApplied decimal.Decimal) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		var rawApplied []byte
		err := r.db.q(ctx).GetContext(ctx, &rawApplied,
			`SELECT data FROM applied_coupons WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, appliedCouponID)
		if err != nil {
			if isNoRows(err) {
				return notFound("applied coupon", appliedCouponID)
			}
			return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
		}
		var applied coupon.AppliedCoupon
		if err := json.Unmarshal(rawApplied, &applied); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}

		var rawCoupon []byte
		err = r.db.q(ctx).GetContext(ctx, &rawCoupon,
			`SELECT data FROM coupons WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, applied.CouponID)
		if err != nil {
			if isNoRows(err) {
				return notFound("coupon", applied.CouponID)
			}
			return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
		}
		var c coupon.Coupon
		if err := json.Unmarshal(rawCoupon, &c); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}

		now := time.Now()
		applied.RedemptionCount++
		applied.AppliedAmount = applied.AppliedAmount.Add(amountApplied)
		applied.LastAppliedAt = &now
		if applied.CouponID != "" && c.IsOneShot() {
			applied.Status = coupon.AppliedCouponConsumed
		}
		c.RedemptionCount++

		if err := putSnapshot(ctx, r.db, "applied_coupons", tenantID, applied.ID, &applied); err != nil {
			return err
		}
		return putSnapshot(ctx, r.db, "coupons", tenantID, c.ID, &c)
	})
}
