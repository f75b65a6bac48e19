package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const pageSize = 250

// GiftCard is a platform-side gift card record, fetched fresh each run.
type GiftCard struct {
	ID             string // full gid
	LastCharacters string
	Balance        float64
	InitialValue   float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one ledger entry on a gift card. Amount is signed:
// debits (redemptions) are negative, credits/top-ups positive.
type Transaction struct {
	ID          string // full gid; may be empty on some historical entries
	Amount      float64
	ProcessedAt time.Time
}

// NumericID extracts the trailing numeric part of a Shopify gid
// ("gid://shopify/GiftCard/123" -> "123"). Plain numeric ids pass through.
func NumericID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

type money struct {
	Amount string `json:"amount"`
}

func (m money) value() float64 {
	f, _ := strconv.ParseFloat(m.Amount, 64)
	return f
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

const giftCardsQuery = `
query giftCards($first: Int!, $after: String, $query: String) {
  giftCards(first: $first, after: $after, query: $query) {
    nodes {
      id
      lastCharacters
      balance { amount }
      initialValue { amount }
      createdAt
      updatedAt
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type giftCardNode struct {
	ID             string `json:"id"`
	LastCharacters string `json:"lastCharacters"`
	Balance        money  `json:"balance"`
	InitialValue   money  `json:"initialValue"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type giftCardsData struct {
	GiftCards struct {
		Nodes    []giftCardNode `json:"nodes"`
		PageInfo pageInfo       `json:"pageInfo"`
	} `json:"giftCards"`
}

// GiftCardsUpdatedSince returns every gift card whose updated_at falls after
// the given time, fully paginated.
func (c *Client) GiftCardsUpdatedSince(ctx context.Context, since time.Time) ([]GiftCard, error) {
	filter := fmt.Sprintf("updated_at:>='%s'", since.UTC().Format(time.RFC3339))

	var cards []GiftCard
	var cursor *string
	for {
		vars := map[string]any{
			"first": pageSize,
			"query": filter,
		}
		if cursor != nil {
			vars["after"] = *cursor
		}

		res, err := postGraphQL[giftCardsData](ctx, c, giftCardsQuery, vars)
		if err != nil {
			return nil, fmt.Errorf("fetch gift cards for %s: %w", c.Domain, err)
		}

		for _, n := range res.Data.GiftCards.Nodes {
			cards = append(cards, GiftCard{
				ID:             n.ID,
				LastCharacters: n.LastCharacters,
				Balance:        n.Balance.value(),
				InitialValue:   n.InitialValue.value(),
				CreatedAt:      parseTime(n.CreatedAt),
				UpdatedAt:      parseTime(n.UpdatedAt),
			})
		}

		pi := res.Data.GiftCards.PageInfo
		if !pi.HasNextPage {
			break
		}
		cursor = &pi.EndCursor
	}

	return cards, nil
}

const giftCardTransactionsQuery = `
query giftCardTransactions($id: ID!, $first: Int!, $after: String) {
  giftCard(id: $id) {
    balance { amount }
    transactions(first: $first, after: $after) {
      nodes {
        id
        amount { amount }
        processedAt
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

type giftCardTransactionsData struct {
	GiftCard *struct {
		Balance      money `json:"balance"`
		Transactions struct {
			Nodes []struct {
				ID          string `json:"id"`
				Amount      money  `json:"amount"`
				ProcessedAt string `json:"processedAt"`
			} `json:"nodes"`
			PageInfo pageInfo `json:"pageInfo"`
		} `json:"transactions"`
	} `json:"giftCard"`
}

// CardTransactions returns the full transaction list for one gift card,
// newest-first as Shopify serves it, plus the card's current balance.
func (c *Client) CardTransactions(ctx context.Context, giftCardGID string) ([]Transaction, float64, error) {
	var txs []Transaction
	var balance float64
	var cursor *string
	for {
		vars := map[string]any{
			"id":    giftCardGID,
			"first": pageSize,
		}
		if cursor != nil {
			vars["after"] = *cursor
		}

		res, err := postGraphQL[giftCardTransactionsData](ctx, c, giftCardTransactionsQuery, vars)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch transactions for %s: %w", giftCardGID, err)
		}

		gc := res.Data.GiftCard
		if gc == nil {
			return nil, 0, fmt.Errorf("gift card %s not found on %s", giftCardGID, c.Domain)
		}
		balance = gc.Balance.value()

		for _, n := range gc.Transactions.Nodes {
			txs = append(txs, Transaction{
				ID:          n.ID,
				Amount:      n.Amount.value(),
				ProcessedAt: parseTime(n.ProcessedAt),
			})
		}

		pi := gc.Transactions.PageInfo
		if !pi.HasNextPage {
			break
		}
		cursor = &pi.EndCursor
	}

	return txs, balance, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
