package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/rs/zerolog/log"
)

type settlementKey struct {
	BrandID string
	Period  string
}

// DeltaAccumulator batches settlement increments for one shop's run. Card
// goroutines within the shop add concurrently; the map is flushed once after
// every card has settled.
type DeltaAccumulator struct {
	mu     stdsync.Mutex
	deltas map[settlementKey]*SettlementDelta
}

func NewDeltaAccumulator() *DeltaAccumulator {
	return &DeltaAccumulator{deltas: make(map[settlementKey]*SettlementDelta)}
}

func (a *DeltaAccumulator) add(brandID, period string, redeemed float64, fullyRedeemed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := settlementKey{BrandID: brandID, Period: period}
	d := a.deltas[k]
	if d == nil {
		d = &SettlementDelta{}
		a.deltas[k] = d
	}
	d.RedeemedAmount += redeemed
	d.OutstandingAmount -= redeemed
	if fullyRedeemed {
		d.TotalRedeemed++
		d.Outstanding--
	}
}

// QueueCardDelta resolves voucher -> order -> brand -> settlement period and
// queues the card's redemption delta. A card whose order or settlement row
// cannot be found contributes nothing: there is no settlement to update.
// fullyRedeemed must be true only when this run drove the balance to zero for
// the first time.
func (a *DeltaAccumulator) QueueCardDelta(ctx context.Context, store Store, voucher *Voucher, redeemed float64, fullyRedeemed bool) error {
	if redeemed == 0 && !fullyRedeemed {
		return nil
	}

	order, err := store.GetOrder(ctx, voucher.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", voucher.OrderID, err)
	}
	if order == nil || order.BrandID == "" {
		return nil
	}

	period := order.CreatedAt.UTC().Format("2006-01")

	settlement, err := store.GetSettlement(ctx, order.BrandID, period)
	if err != nil {
		return fmt.Errorf("load settlement %s/%s: %w", order.BrandID, period, err)
	}
	if settlement == nil {
		return nil
	}

	a.add(order.BrandID, period, redeemed, fullyRedeemed)
	return nil
}

// Flush applies every accumulated delta as one atomic increment per
// settlement row. Individual failures are logged and counted, not fatal:
// the deltas are commutative and the next run will not replay them, so a
// failed flush entry is reported in the run summary instead.
func (a *DeltaAccumulator) Flush(ctx context.Context, store Store) (updated int, errs []error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, d := range a.deltas {
		if err := store.ApplySettlementDelta(ctx, k.BrandID, k.Period, *d); err != nil {
			log.Error().Str("brand", k.BrandID).Str("period", k.Period).Err(err).
				Msg("sync: settlement delta flush failed")
			errs = append(errs, fmt.Errorf("settlement %s/%s: %w", k.BrandID, k.Period, err))
			continue
		}
		updated++
	}
	a.deltas = make(map[settlementKey]*SettlementDelta)
	return updated, errs
}
