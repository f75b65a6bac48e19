package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"giftbackend/internal/shopify"
	"giftbackend/internal/shops"
)

// memStore mirrors the DynamoDB store's semantics in memory, including the
// silent drop of redemptions that collide with the uniqueness constraint and
// the skip-if-missing settlement delta.
type memStore struct {
	mu stdsync.Mutex

	vouchers    map[string]*Voucher     // by gift card id
	redemptions map[string][]Redemption // by voucher id
	redeemKeys  map[string]struct{}     // voucherID|numeric tx id
	orders      map[string]*Order
	settlements map[settlementKey]*Settlement
}

func newMemStore() *memStore {
	return &memStore{
		vouchers:    make(map[string]*Voucher),
		redemptions: make(map[string][]Redemption),
		redeemKeys:  make(map[string]struct{}),
		orders:      make(map[string]*Order),
		settlements: make(map[settlementKey]*Settlement),
	}
}

func (s *memStore) GetVoucherByGiftCardID(_ context.Context, giftCardID string) (*Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[giftCardID], nil
}

func (s *memStore) ListRedemptions(_ context.Context, voucherID string) ([]Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Redemption(nil), s.redemptions[voucherID]...), nil
}

func (s *memStore) InsertRedemptions(_ context.Context, reds []Redemption) (int, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	var total float64
	for _, r := range reds {
		key := r.VoucherID + "|" + shopify.NumericID(r.TransactionID)
		if _, dup := s.redeemKeys[key]; dup {
			continue
		}
		s.redeemKeys[key] = struct{}{}
		s.redemptions[r.VoucherID] = append(s.redemptions[r.VoucherID], r)
		inserted++
		total += r.Amount
	}
	return inserted, total, nil
}

func (s *memStore) UpdateVoucherBalance(_ context.Context, voucher *Voucher, remaining float64, redeemed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.vouchers[voucher.GiftCardID]
	if v == nil {
		return fmt.Errorf("voucher %s not found", voucher.ID)
	}
	v.RemainingValue = remaining
	v.IsRedeemed = redeemed
	return nil
}

func (s *memStore) GetOrder(_ context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID], nil
}

func (s *memStore) GetSettlement(_ context.Context, brandID, period string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row := s.settlements[settlementKey{brandID, period}]; row != nil {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) ApplySettlementDelta(_ context.Context, brandID, period string, d SettlementDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.settlements[settlementKey{brandID, period}]
	if row == nil {
		return nil
	}
	row.RedeemedAmount += d.RedeemedAmount
	row.OutstandingAmount += d.OutstandingAmount
	row.TotalRedeemed += d.TotalRedeemed
	row.Outstanding += d.Outstanding
	return nil
}

// fakeShops is an in-memory ShopSource.
type fakeShops struct {
	mu       stdsync.Mutex
	installs []shops.Installation
	touched  map[string]string
}

func newFakeShops(installs ...shops.Installation) *fakeShops {
	return &fakeShops{installs: installs, touched: make(map[string]string)}
}

func (f *fakeShops) ListInstallations(context.Context) ([]shops.Installation, error) {
	return f.installs, nil
}

func (f *fakeShops) TouchLastSync(_ context.Context, domain, atISO string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[domain] = atISO
	return nil
}

// fakeFetcher serves canned remote data and tracks in-flight transaction
// fetches so tests can assert the concurrency cap.
type fakeFetcher struct {
	mu       stdsync.Mutex
	cards    map[string][]shopify.GiftCard    // by shop domain
	txs      map[string][]shopify.Transaction // by card gid
	balances map[string]float64               // by card gid
	shopErr  map[string]error                 // per-domain gift card fetch error
	cardErr  map[string]error                 // per-card transaction fetch error

	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		cards:    make(map[string][]shopify.GiftCard),
		txs:      make(map[string][]shopify.Transaction),
		balances: make(map[string]float64),
		shopErr:  make(map[string]error),
		cardErr:  make(map[string]error),
	}
}

func (f *fakeFetcher) GiftCards(_ context.Context, inst shops.Installation, _ time.Time) ([]shopify.GiftCard, error) {
	if err := f.shopErr[inst.Domain]; err != nil {
		return nil, err
	}
	return f.cards[inst.Domain], nil
}

func (f *fakeFetcher) CardTransactions(_ context.Context, _ shops.Installation, gid string) ([]shopify.Transaction, float64, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err := f.cardErr[gid]; err != nil {
		return nil, 0, err
	}
	return f.txs[gid], f.balances[gid], nil
}
