package sync

import "context"

// NewRedemption maps a deduplicated remote transaction onto the persisted
// ledger shape. The stored amount is the positive value redeemed.
func NewRedemption(voucherID, storeURL string, tx CardTransaction) Redemption {
	return Redemption{
		VoucherID:     voucherID,
		Amount:        -tx.Amount,
		BalanceAfter:  tx.BalanceAfter,
		RedeemedAt:    tx.ProcessedAt,
		TransactionID: tx.ID,
		StoreURL:      storeURL,
	}
}

// WriteRedemptions persists one ledger row per transaction. Zero-amount or
// id-less entries are dropped here as well — the dedup filter should have
// excluded them already, but the writer never trusts its input that far.
// Returns rows actually inserted and the sum of their amounts, which can be
// less than the batch when the storage layer absorbed a duplicate from a
// concurrent run.
func WriteRedemptions(ctx context.Context, store Store, voucherID, storeURL string, txs []CardTransaction) (int, float64, error) {
	reds := make([]Redemption, 0, len(txs))
	for _, tx := range txs {
		if tx.ID == "" || tx.Amount == 0 {
			continue
		}
		reds = append(reds, NewRedemption(voucherID, storeURL, tx))
	}
	if len(reds) == 0 {
		return 0, 0, nil
	}
	return store.InsertRedemptions(ctx, reds)
}
