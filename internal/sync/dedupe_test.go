package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persisted(txID string, amount, balanceAfter float64, day int) Redemption {
	return Redemption{
		VoucherID:     "v1",
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		RedeemedAt:    time.Date(2026, 7, day, 9, 30, 0, 0, time.UTC),
		TransactionID: txID,
	}
}

func annotated(id string, amount, balanceAfter float64, day int) CardTransaction {
	return CardTransaction{
		Transaction:  tx(id, amount, day),
		BalanceAfter: balanceAfter,
	}
}

func TestFilterNewExactIDMatch(t *testing.T) {
	existing := []Redemption{
		persisted("gid://shopify/GiftCardDebitTransaction/100", 20, 80, 1),
	}

	res := FilterNew(existing, []CardTransaction{
		annotated("gid://shopify/GiftCardDebitTransaction/100", -20, 80, 1),
	})

	assert.Empty(t, res.New)
	assert.Equal(t, 1, res.Duplicates)
}

func TestFilterNewNumericSuffixMatch(t *testing.T) {
	// Historical rows stored bare numeric ids; the incoming gid still has to
	// be recognized as the same transaction.
	existing := []Redemption{
		persisted("100", 20, 80, 1),
	}

	res := FilterNew(existing, []CardTransaction{
		annotated("gid://shopify/GiftCardDebitTransaction/100", -20, 999, 9),
	})

	assert.Empty(t, res.New)
	assert.Equal(t, 1, res.Duplicates)
}

func TestFilterNewCompositeMatch(t *testing.T) {
	// Unknown id, but amount + balance-after + calendar day line up with a
	// row saved under an older id convention.
	existing := []Redemption{
		persisted("legacy-convention-abc", 20, 80, 1),
	}

	res := FilterNew(existing, []CardTransaction{
		annotated("gid://shopify/GiftCardDebitTransaction/777", -20, 80, 1),
	})

	assert.Empty(t, res.New)
	assert.Equal(t, 1, res.Duplicates)
}

func TestFilterNewCreditsIgnored(t *testing.T) {
	res := FilterNew(nil, []CardTransaction{
		annotated("gid://shopify/GiftCardCreditTransaction/5", 50, 100, 1),
		annotated("gid://shopify/GiftCardDebitTransaction/6", 0, 100, 1),
	})

	assert.Empty(t, res.New)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.Unidentifiable)
}

func TestFilterNewMissingID(t *testing.T) {
	res := FilterNew(nil, []CardTransaction{
		annotated("", -20, 80, 1),
		annotated("gid://shopify/GiftCardDebitTransaction/8", -10, 70, 2),
	})

	require.Len(t, res.New, 1)
	assert.Equal(t, "gid://shopify/GiftCardDebitTransaction/8", res.New[0].ID)
	assert.Equal(t, 1, res.Unidentifiable)
}

func TestFilterNewIntraBatchDedup(t *testing.T) {
	// Two identical-looking new transactions in one batch must not both
	// survive: the first one's fingerprints are registered immediately.
	res := FilterNew(nil, []CardTransaction{
		annotated("gid://shopify/GiftCardDebitTransaction/9", -20, 80, 1),
		annotated("gid://shopify/GiftCardDebitTransaction/9", -20, 80, 1),
	})

	require.Len(t, res.New, 1)
	assert.Equal(t, 1, res.Duplicates)
}

func TestFilterNewKeepsOrder(t *testing.T) {
	res := FilterNew(nil, []CardTransaction{
		annotated("gid://shopify/GiftCardDebitTransaction/3", -30, 40, 3),
		annotated("gid://shopify/GiftCardDebitTransaction/2", -20, 70, 2),
		annotated("gid://shopify/GiftCardDebitTransaction/1", -10, 90, 1),
	})

	require.Len(t, res.New, 3)
	assert.Equal(t, "gid://shopify/GiftCardDebitTransaction/3", res.New[0].ID)
	assert.Equal(t, "gid://shopify/GiftCardDebitTransaction/1", res.New[2].ID)
}
