package sync

import "giftbackend/internal/shopify"

// AnnotateBalances assigns each transaction the balance that existed right
// after it applied. Input is newest-first, the order Shopify serves pages in,
// and only the current (final) balance is known a priori — so this has to run
// once over the complete list per card, never per page.
//
// Walking from the most recent transaction backward: the newest transaction
// left the card at the current balance; each older transaction's
// balance-after is recovered by undoing the signed amounts applied after it.
func AnnotateBalances(txs []shopify.Transaction, currentBalance float64) []CardTransaction {
	if len(txs) == 0 {
		return nil
	}

	out := make([]CardTransaction, len(txs))
	running := currentBalance
	for i, tx := range txs {
		out[i] = CardTransaction{Transaction: tx, BalanceAfter: running}
		running -= tx.Amount
	}
	return out
}
