package sync

import (
	"context"
	"fmt"
	"time"

	"giftbackend/internal/shopify"
	"giftbackend/internal/shops"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultShopConcurrency = 3
	defaultCardConcurrency = 5
	defaultWindow          = 30 * 24 * time.Hour
)

// Fetcher pulls remote gift-card data for one shop. The production
// implementation wraps the Admin GraphQL client; tests substitute a fake.
type Fetcher interface {
	GiftCards(ctx context.Context, inst shops.Installation, updatedSince time.Time) ([]shopify.GiftCard, error)
	CardTransactions(ctx context.Context, inst shops.Installation, giftCardGID string) ([]shopify.Transaction, float64, error)
}

// ShopSource yields the connected shop installations and records sync times.
type ShopSource interface {
	ListInstallations(ctx context.Context) ([]shops.Installation, error)
	TouchLastSync(ctx context.Context, domain, atISO string) error
}

// ShopifyFetcher is the production Fetcher.
type ShopifyFetcher struct{}

func (ShopifyFetcher) GiftCards(ctx context.Context, inst shops.Installation, updatedSince time.Time) ([]shopify.GiftCard, error) {
	return shopify.NewClient(inst.Domain, inst.AccessToken).GiftCardsUpdatedSince(ctx, updatedSince)
}

func (ShopifyFetcher) CardTransactions(ctx context.Context, inst shops.Installation, giftCardGID string) ([]shopify.Transaction, float64, error) {
	return shopify.NewClient(inst.Domain, inst.AccessToken).CardTransactions(ctx, giftCardGID)
}

// Runner drives the whole reconciliation run: every shop, every eligible
// card, with bounded concurrency at both levels.
type Runner struct {
	Store   Store
	Shops   ShopSource
	Fetcher Fetcher

	// Window is the trailing updated_at range for card discovery (30 days
	// when zero).
	Window time.Duration

	ShopConcurrency int64
	CardConcurrency int64
}

// RunSummary is what a completed run reports. Failures carries the reason
// for every shop or card that did not finish; the run itself still counts as
// a success.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Shops              int
	Cards              int
	Transactions       int
	NewRedemptions     int
	NewValue           float64
	SkippedDuplicates  int
	SkippedNoID        int
	SettlementsUpdated int

	Failures []string
}

// ShopSummary is the per-shop slice of the run summary.
type ShopSummary struct {
	Domain             string
	Cards              int
	Transactions       int
	NewRedemptions     int
	NewValue           float64
	SkippedDuplicates  int
	SkippedNoID        int
	SettlementsUpdated int
	Failures           []string
}

type cardResult struct {
	Transactions   int
	NewRedemptions int
	NewValue       float64
	Duplicates     int
	NoID           int
}

func (r *Runner) shopConcurrency() int64 {
	if r.ShopConcurrency > 0 {
		return r.ShopConcurrency
	}
	return defaultShopConcurrency
}

func (r *Runner) cardConcurrency() int64 {
	if r.CardConcurrency > 0 {
		return r.CardConcurrency
	}
	return defaultCardConcurrency
}

func (r *Runner) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return defaultWindow
}

// Run syncs every connected shop. It only returns an error when the shop
// list itself cannot be loaded; all finer-grained failures are isolated to
// their unit of work and reported in the summary. Re-running is always safe:
// persistence is dedup-guarded and settlement updates are commutative deltas.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	sum := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
	}

	installs, err := r.Shops.ListInstallations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shop installations: %w", err)
	}

	log.Info().Str("run_id", sum.RunID).Int("shops", len(installs)).Msg("sync: run started")

	results := mapLimit(ctx, r.shopConcurrency(), installs, r.processShop)
	for i, res := range results {
		sum.Shops++
		if res.Err != nil {
			sum.Failures = append(sum.Failures, fmt.Sprintf("shop %s: %v", installs[i].Domain, res.Err))
			continue
		}
		s := res.Value
		sum.Cards += s.Cards
		sum.Transactions += s.Transactions
		sum.NewRedemptions += s.NewRedemptions
		sum.NewValue += s.NewValue
		sum.SkippedDuplicates += s.SkippedDuplicates
		sum.SkippedNoID += s.SkippedNoID
		sum.SettlementsUpdated += s.SettlementsUpdated
		sum.Failures = append(sum.Failures, s.Failures...)
	}

	sum.Duration = time.Since(start)
	log.Info().Str("run_id", sum.RunID).
		Int("cards", sum.Cards).
		Int("new_redemptions", sum.NewRedemptions).
		Float64("new_value", sum.NewValue).
		Int("failures", len(sum.Failures)).
		Dur("elapsed", sum.Duration).
		Msg("sync: run finished")
	return sum, nil
}

func (r *Runner) processShop(ctx context.Context, inst shops.Installation) (ShopSummary, error) {
	cards, err := r.Fetcher.GiftCards(ctx, inst, time.Now().Add(-r.window()))
	if err != nil {
		return ShopSummary{}, fmt.Errorf("fetch gift cards: %w", err)
	}

	shopSum := ShopSummary{Domain: inst.Domain}
	acc := NewDeltaAccumulator()

	results := mapLimit(ctx, r.cardConcurrency(), cards, func(ctx context.Context, card shopify.GiftCard) (cardResult, error) {
		return r.processCard(ctx, inst, acc, card)
	})
	for i, res := range results {
		shopSum.Cards++
		if res.Err != nil {
			shopSum.Failures = append(shopSum.Failures,
				fmt.Sprintf("shop %s card %s: %v", inst.Domain, shopify.NumericID(cards[i].ID), res.Err))
			continue
		}
		shopSum.Transactions += res.Value.Transactions
		shopSum.NewRedemptions += res.Value.NewRedemptions
		shopSum.NewValue += res.Value.NewValue
		shopSum.SkippedDuplicates += res.Value.Duplicates
		shopSum.SkippedNoID += res.Value.NoID
	}

	// The delta map is shop-local, flushed exactly once after all of this
	// shop's cards settle.
	updated, flushErrs := acc.Flush(ctx, r.Store)
	shopSum.SettlementsUpdated = updated
	for _, ferr := range flushErrs {
		shopSum.Failures = append(shopSum.Failures, fmt.Sprintf("shop %s: %v", inst.Domain, ferr))
	}

	if err := r.Shops.TouchLastSync(ctx, inst.Domain, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Str("shop", inst.Domain).Err(err).Msg("sync: could not record last sync time")
	}

	return shopSum, nil
}

func (r *Runner) processCard(ctx context.Context, inst shops.Installation, acc *DeltaAccumulator, card shopify.GiftCard) (cardResult, error) {
	voucher, err := r.Store.GetVoucherByGiftCardID(ctx, shopify.NumericID(card.ID))
	if err != nil {
		return cardResult{}, fmt.Errorf("load voucher: %w", err)
	}
	if voucher == nil {
		// The remote card has no local counterpart — nothing to reconcile.
		log.Debug().Str("shop", inst.Domain).Str("gift_card", shopify.NumericID(card.ID)).
			Msg("sync: no local voucher for remote card")
		return cardResult{}, nil
	}

	txs, balance, err := r.Fetcher.CardTransactions(ctx, inst, card.ID)
	if err != nil {
		return cardResult{}, err
	}

	annotated := AnnotateBalances(txs, balance)

	existing, err := r.Store.ListRedemptions(ctx, voucher.ID)
	if err != nil {
		return cardResult{}, fmt.Errorf("load redemptions: %w", err)
	}

	filtered := FilterNew(existing, annotated)

	inserted, value, err := WriteRedemptions(ctx, r.Store, voucher.ID, inst.Domain, filtered.New)
	if err != nil {
		return cardResult{}, fmt.Errorf("write redemptions: %w", err)
	}

	fullyRedeemed := balance == 0 && !voucher.IsRedeemed

	// The local balance mirrors the latest remote observation no matter how
	// many transactions were skipped as duplicates.
	if err := r.Store.UpdateVoucherBalance(ctx, voucher, balance, voucher.IsRedeemed || balance == 0); err != nil {
		return cardResult{}, fmt.Errorf("update voucher balance: %w", err)
	}

	if inserted > 0 {
		if err := acc.QueueCardDelta(ctx, r.Store, voucher, value, fullyRedeemed); err != nil {
			return cardResult{}, err
		}
	}

	return cardResult{
		Transactions:   len(txs),
		NewRedemptions: inserted,
		NewValue:       value,
		Duplicates:     filtered.Duplicates,
		NoID:           filtered.Unidentifiable,
	}, nil
}
