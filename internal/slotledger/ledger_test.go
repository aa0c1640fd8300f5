package slotledger

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/slot"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	txs []*slot.Transaction
}

func (m *memRepo) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	var out []*slot.Transaction
	for _, tx := range m.txs {
		if tx.SubscriptionID == subscriptionID && tx.ComponentID == componentID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memRepo) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}

func (m *memRepo) Insert(ctx context.Context, tx *slot.Transaction) error {
	tx.ID = "tx"
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memRepo) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	for _, tx := range m.txs {
		if tx.InvoiceID != nil && *tx.InvoiceID == invoiceID {
			tx.Status = types.SlotTransactionActive
		}
	}
	return nil
}

func TestEffectiveAt_UpgradeImmediate(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	got := EffectiveAt(5, now, periodEnd)
	assert.True(t, got.Equal(now))
}

func TestEffectiveAt_DowngradeDeferred(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	got := EffectiveAt(-5, now, periodEnd)
	assert.True(t, got.Equal(periodEnd))
}

func TestAddTransaction_RejectsBelowMinimum(t *testing.T) {
	repo := &memRepo{}
	ledger := New(repo)
	min := uint64(3)
	s := price.NewSlot("slot-1", "seats", "seat", decimal.NewFromInt(10))
	s.MinSlots = &min

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.AddTransaction(context.Background(), "t1", "sub-1", s, 3, now, periodEnd)
	require.NoError(t, err)

	_, err = ledger.AddTransaction(context.Background(), "t1", "sub-1", s, -1, now, periodEnd)
	require.Error(t, err)
}

func TestAddTransaction_RejectsAboveMaximum(t *testing.T) {
	repo := &memRepo{}
	ledger := New(repo)
	max := uint64(5)
	s := price.NewSlot("slot-1", "seats", "seat", decimal.NewFromInt(10))
	s.MaxSlots = &max

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.AddTransaction(context.Background(), "t1", "sub-1", s, 5, now, periodEnd)
	require.NoError(t, err)

	_, err = ledger.AddTransaction(context.Background(), "t1", "sub-1", s, 1, now, periodEnd)
	require.Error(t, err)
}

func TestActivatePendingForInvoice(t *testing.T) {
	repo := &memRepo{}
	ledger := New(repo)
	s := price.NewSlot("slot-1", "seats", "seat", decimal.NewFromInt(10))

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tx, err := ledger.AddPendingTransaction(context.Background(), "t1", "sub-1", s, 2, "inv-1", now, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, types.SlotTransactionPending, tx.Status)

	require.NoError(t, ledger.ActivatePendingForInvoice(context.Background(), "t1", "inv-1"))

	count, err := ledger.ActiveSlotsAt(context.Background(), "t1", "sub-1", "slot-1", periodEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
