package sync

import (
	"fmt"
	"time"

	"giftbackend/internal/shopify"
)

// Two independent fingerprints decide whether a transaction is already
// recorded: the exact platform id (full gid or its numeric suffix, since
// historical rows used both conventions), and a composite of
// amount|balance-after|calendar-day that catches rows saved under yet another
// id scheme.

type fingerprints struct {
	ids        map[string]struct{}
	composites map[string]struct{}
}

func newFingerprints(existing []Redemption) *fingerprints {
	fp := &fingerprints{
		ids:        make(map[string]struct{}, len(existing)*2),
		composites: make(map[string]struct{}, len(existing)),
	}
	for _, r := range existing {
		if r.TransactionID != "" {
			fp.ids[r.TransactionID] = struct{}{}
			fp.ids[shopify.NumericID(r.TransactionID)] = struct{}{}
		}
		fp.composites[compositeKey(r.Amount, r.BalanceAfter, r.RedeemedAt)] = struct{}{}
	}
	return fp
}

func (fp *fingerprints) seen(tx CardTransaction) bool {
	if _, ok := fp.ids[tx.ID]; ok {
		return true
	}
	if _, ok := fp.ids[shopify.NumericID(tx.ID)]; ok {
		return true
	}
	_, ok := fp.composites[compositeKey(-tx.Amount, tx.BalanceAfter, tx.ProcessedAt)]
	return ok
}

func (fp *fingerprints) add(tx CardTransaction) {
	fp.ids[tx.ID] = struct{}{}
	fp.ids[shopify.NumericID(tx.ID)] = struct{}{}
	fp.composites[compositeKey(-tx.Amount, tx.BalanceAfter, tx.ProcessedAt)] = struct{}{}
}

func compositeKey(amount, balanceAfter float64, at time.Time) string {
	return fmt.Sprintf("%.2f|%.2f|%s", amount, balanceAfter, at.UTC().Format(time.DateOnly))
}

// FilterResult is the outcome of deduplicating one card's transactions.
type FilterResult struct {
	New            []CardTransaction
	Duplicates     int
	Unidentifiable int
}

// FilterNew returns the subset of transactions not already persisted.
// Only debits are considered; credits/top-ups are ignored entirely.
// A transaction without a platform id cannot be safely deduplicated and is
// counted separately. Each accepted transaction is fingerprinted immediately
// so two identical-looking new transactions in one batch yield one row.
func FilterNew(existing []Redemption, txs []CardTransaction) FilterResult {
	fp := newFingerprints(existing)

	var res FilterResult
	for _, tx := range txs {
		if tx.Amount >= 0 {
			continue
		}
		if tx.ID == "" {
			res.Unidentifiable++
			continue
		}
		if fp.seen(tx) {
			res.Duplicates++
			continue
		}
		fp.add(tx)
		res.New = append(res.New, tx)
	}
	return res
}
