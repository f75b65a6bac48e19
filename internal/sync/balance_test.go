package sync

import (
	"testing"
	"time"

	"giftbackend/internal/shopify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(id string, amount float64, day int) shopify.Transaction {
	return shopify.Transaction{
		ID:          id,
		Amount:      amount,
		ProcessedAt: time.Date(2026, 7, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestAnnotateBalances(t *testing.T) {
	// Chronological debits -10, -20, -30 leaving a final balance of 40:
	// the card started at 100 and passed through 90 and 70.
	newestFirst := []shopify.Transaction{
		tx("gid://shopify/GiftCardDebitTransaction/3", -30, 3),
		tx("gid://shopify/GiftCardDebitTransaction/2", -20, 2),
		tx("gid://shopify/GiftCardDebitTransaction/1", -10, 1),
	}

	out := AnnotateBalances(newestFirst, 40)
	require.Len(t, out, 3)

	assert.Equal(t, 40.0, out[0].BalanceAfter)
	assert.Equal(t, 70.0, out[1].BalanceAfter)
	assert.Equal(t, 90.0, out[2].BalanceAfter)

	// Order and payloads are untouched.
	assert.Equal(t, newestFirst[0].ID, out[0].ID)
	assert.Equal(t, newestFirst[2].ID, out[2].ID)
}

func TestAnnotateBalancesEarliestMatchesSum(t *testing.T) {
	newestFirst := []shopify.Transaction{
		tx("gid://shopify/GiftCardDebitTransaction/4", -5, 4),
		tx("gid://shopify/GiftCardCreditTransaction/3", 25, 3),
		tx("gid://shopify/GiftCardDebitTransaction/2", -40, 2),
		tx("gid://shopify/GiftCardDebitTransaction/1", -15, 1),
	}
	final := 65.0

	out := AnnotateBalances(newestFirst, final)
	require.Len(t, out, 4)

	// balance-after of the earliest transaction equals the final balance
	// minus every later signed amount.
	var laterSum float64
	for _, t := range newestFirst[:3] {
		laterSum += t.Amount
	}
	assert.InDelta(t, final-laterSum, out[3].BalanceAfter, 1e-9)
}

func TestAnnotateBalancesEmpty(t *testing.T) {
	assert.Nil(t, AnnotateBalances(nil, 100))
	assert.Nil(t, AnnotateBalances([]shopify.Transaction{}, 100))
}
