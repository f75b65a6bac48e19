package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithSettlement() *memStore {
	store := newMemStore()
	store.orders["o1"] = &Order{ID: "o1", BrandID: "brand-a", CreatedAt: time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)}
	store.settlements[settlementKey{"brand-a", "2026-07"}] = &Settlement{
		BrandID: "brand-a", Period: "2026-07",
		RedeemedAmount: 100, OutstandingAmount: 500,
		TotalRedeemed: 2, Outstanding: 10,
	}
	return store
}

func TestQueueCardDeltaAndFlush(t *testing.T) {
	ctx := context.Background()
	store := storeWithSettlement()
	acc := NewDeltaAccumulator()

	voucher := &Voucher{ID: "v1", OrderID: "o1", GiftCardID: "101"}
	require.NoError(t, acc.QueueCardDelta(ctx, store, voucher, 20, true))

	updated, errs := acc.Flush(ctx, store)
	assert.Equal(t, 1, updated)
	assert.Empty(t, errs)

	row := store.settlements[settlementKey{"brand-a", "2026-07"}]
	assert.Equal(t, 120.0, row.RedeemedAmount)
	assert.Equal(t, 480.0, row.OutstandingAmount)
	assert.Equal(t, 3, row.TotalRedeemed)
	assert.Equal(t, 9, row.Outstanding)
}

func TestQueueCardDeltaSkipsMissingOrderOrSettlement(t *testing.T) {
	ctx := context.Background()
	store := storeWithSettlement()
	acc := NewDeltaAccumulator()

	// Unknown order.
	require.NoError(t, acc.QueueCardDelta(ctx, store, &Voucher{ID: "v1", OrderID: "nope"}, 20, false))

	// Known order, but no settlement row for the brand+period.
	store.orders["o2"] = &Order{ID: "o2", BrandID: "brand-b", CreatedAt: time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, acc.QueueCardDelta(ctx, store, &Voucher{ID: "v2", OrderID: "o2"}, 20, false))

	updated, errs := acc.Flush(ctx, store)
	assert.Zero(t, updated)
	assert.Empty(t, errs)
}

func TestDeltaAccumulatorMergesSameSettlement(t *testing.T) {
	ctx := context.Background()
	store := storeWithSettlement()
	acc := NewDeltaAccumulator()

	v1 := &Voucher{ID: "v1", OrderID: "o1"}
	v2 := &Voucher{ID: "v2", OrderID: "o1"}
	require.NoError(t, acc.QueueCardDelta(ctx, store, v1, 20, false))
	require.NoError(t, acc.QueueCardDelta(ctx, store, v2, 30, true))

	updated, _ := acc.Flush(ctx, store)
	assert.Equal(t, 1, updated)

	row := store.settlements[settlementKey{"brand-a", "2026-07"}]
	assert.Equal(t, 150.0, row.RedeemedAmount)
	assert.Equal(t, 450.0, row.OutstandingAmount)
	assert.Equal(t, 3, row.TotalRedeemed)
	assert.Equal(t, 9, row.Outstanding)
}

func TestSettlementDeltasCommute(t *testing.T) {
	ctx := context.Background()

	d1 := SettlementDelta{RedeemedAmount: 20, OutstandingAmount: -20, TotalRedeemed: 1, Outstanding: -1}
	d2 := SettlementDelta{RedeemedAmount: 35, OutstandingAmount: -35}

	apply := func(order ...SettlementDelta) *Settlement {
		store := storeWithSettlement()
		for _, d := range order {
			require.NoError(t, store.ApplySettlementDelta(ctx, "brand-a", "2026-07", d))
		}
		return store.settlements[settlementKey{"brand-a", "2026-07"}]
	}

	assert.Equal(t, apply(d1, d2), apply(d2, d1))
}
