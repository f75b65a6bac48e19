package sync

import (
	"context"
	"time"

	"giftbackend/internal/shopify"
)

// CardTransaction is a remote transaction annotated with the balance that
// existed immediately after it applied.
type CardTransaction struct {
	shopify.Transaction
	BalanceAfter float64
}

// Voucher is the local record binding a remote gift card to an order.
type Voucher struct {
	ID             string
	OrderID        string
	GiftCardID     string // numeric remote id
	RemainingValue float64
	InitialValue   float64
	IsRedeemed     bool
}

// Redemption is one immutable ledger entry. Amount is the positive value
// redeemed; rows are only ever inserted, never updated or deleted.
type Redemption struct {
	VoucherID     string
	Amount        float64
	BalanceAfter  float64
	RedeemedAt    time.Time
	TransactionID string // full platform gid
	StoreURL      string
}

// Order links a voucher to a brand and a creation date; the creation month
// selects the settlement period.
type Order struct {
	ID        string
	BrandID   string
	CreatedAt time.Time
}

// Settlement aggregates redeemed/outstanding value per brand per month.
type Settlement struct {
	BrandID           string
	Period            string // YYYY-MM
	RedeemedAmount    float64
	OutstandingAmount float64
	TotalRedeemed     int
	Outstanding       int
}

// SettlementDelta is a commutative increment applied to one settlement row.
type SettlementDelta struct {
	RedeemedAmount    float64
	OutstandingAmount float64
	TotalRedeemed     int
	Outstanding       int
}

// Store is the persistence surface of the sync pipeline. The DynamoDB
// implementation lives in dynamo.go; tests substitute an in-memory one.
type Store interface {
	// GetVoucherByGiftCardID returns nil (no error) when the remote card has
	// no local counterpart.
	GetVoucherByGiftCardID(ctx context.Context, giftCardID string) (*Voucher, error)

	// ListRedemptions returns every persisted redemption for one voucher.
	ListRedemptions(ctx context.Context, voucherID string) ([]Redemption, error)

	// InsertRedemptions persists the batch, silently dropping rows that
	// collide with the per-transaction uniqueness constraint. It reports the
	// rows actually written and the sum of their amounts.
	InsertRedemptions(ctx context.Context, reds []Redemption) (int, float64, error)

	// UpdateVoucherBalance syncs the locally tracked balance to the latest
	// remote observation.
	UpdateVoucherBalance(ctx context.Context, voucher *Voucher, remaining float64, redeemed bool) error

	// GetOrder returns nil (no error) when the order does not exist.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// GetSettlement returns nil (no error) when no row exists for the
	// brand+period.
	GetSettlement(ctx context.Context, brandID, period string) (*Settlement, error)

	// ApplySettlementDelta applies the delta as a single atomic
	// increment/decrement so concurrent runs commute. A missing row is a
	// no-op, not an error.
	ApplySettlementDelta(ctx context.Context, brandID, period string, d SettlementDelta) error
}
