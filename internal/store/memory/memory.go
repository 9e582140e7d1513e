// Package memory is an in-process store.Store. A transaction works on a
// private copy of the state and swaps it in on commit, so a failed
// transaction leaves nothing behind. Transactions are fully serialized.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
)

type state struct {
	orders        map[string]domain.Order
	bids          map[string]domain.Bid
	bidKeys       map[string]string
	wallets       map[string]domain.Wallet
	walletByUser  map[string]string
	transactions  []domain.Transaction
	reviews       map[string]domain.Review
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		orders:       make(map[string]domain.Order),
		bids:         make(map[string]domain.Bid),
		bidKeys:      make(map[string]string),
		wallets:      make(map[string]domain.Wallet),
		walletByUser: make(map[string]string),
		reviews:      make(map[string]domain.Review),
	}
}

func (s *state) clone() *state {
	return &state{
		orders:        maps.Clone(s.orders),
		bids:          maps.Clone(s.bids),
		bidKeys:       maps.Clone(s.bidKeys),
		wallets:       maps.Clone(s.wallets),
		walletByUser:  maps.Clone(s.walletByUser),
		transactions:  slices.Clone(s.transactions),
		reviews:       maps.Clone(s.reviews),
		notifications: slices.Clone(s.notifications),
	}
}

// Store keeps everything in memory.
type Store struct {
	mu    sync.RWMutex
	state *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{reader{work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

// read returns a view of the committed state and the func releasing it.
func (s *Store) read() (reader, func()) {
	s.mu.RLock()
	return reader{s.state}, s.mu.RUnlock
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	r, done := s.read()
	defer done()
	return r.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	r, done := s.read()
	defer done()
	return r.ListOrders(ctx, f)
}

func (s *Store) CountOrdersByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	r, done := s.read()
	defer done()
	return r.CountOrdersByStatus(ctx)
}

func (s *Store) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	r, done := s.read()
	defer done()
	return r.GetBid(ctx, id)
}

func (s *Store) ListBids(ctx context.Context, f store.BidFilter) ([]domain.Bid, error) {
	r, done := s.read()
	defer done()
	return r.ListBids(ctx, f)
}

func (s *Store) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	r, done := s.read()
	defer done()
	return r.GetWallet(ctx, userID)
}

func (s *Store) ListWallets(ctx context.Context) ([]domain.Wallet, error) {
	r, done := s.read()
	defer done()
	return r.ListWallets(ctx)
}

func (s *Store) ListTransactions(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	r, done := s.read()
	defer done()
	return r.ListTransactions(ctx, walletID)
}

func (s *Store) GetReview(ctx context.Context, orderID string) (domain.Review, error) {
	r, done := s.read()
	defer done()
	return r.GetReview(ctx, orderID)
}

func (s *Store) ListReviews(ctx context.Context, chefID string) ([]domain.Review, error) {
	r, done := s.read()
	defer done()
	return r.ListReviews(ctx, chefID)
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	r, done := s.read()
	defer done()
	return r.ListNotifications(ctx, userID)
}

func (s *Store) ChefRollups(ctx context.Context) ([]domain.ChefRollup, error) {
	r, done := s.read()
	defer done()
	return r.ChefRollups(ctx)
}

type reader struct {
	st *state
}

func (r reader) GetOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (r reader) ListOrders(_ context.Context, f store.OrderFilter) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.st.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.AcceptedChefID != "" && !o.IsAcceptedChef(f.AcceptedChefID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r reader) CountOrdersByStatus(_ context.Context) (map[domain.OrderStatus]int, error) {
	counts := make(map[domain.OrderStatus]int)
	for _, o := range r.st.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (r reader) GetBid(_ context.Context, id string) (domain.Bid, error) {
	b, ok := r.st.bids[id]
	if !ok {
		return domain.Bid{}, fmt.Errorf("bid %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (r reader) ListBids(_ context.Context, f store.BidFilter) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range r.st.bids {
		if f.OrderID != "" && b.OrderID != f.OrderID {
			continue
		}
		if f.ChefID != "" && b.ChefID != f.ChefID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r reader) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	id, ok := r.st.walletByUser[userID]
	if !ok {
		return domain.Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, domain.ErrNotFound)
	}
	return r.st.wallets[id], nil
}

func (r reader) ListWallets(_ context.Context) ([]domain.Wallet, error) {
	out := slices.Collect(maps.Values(r.st.wallets))
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r reader) ListTransactions(_ context.Context, walletID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for i := len(r.st.transactions) - 1; i >= 0; i-- {
		if t := r.st.transactions[i]; t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r reader) GetReview(_ context.Context, orderID string) (domain.Review, error) {
	rv, ok := r.st.reviews[orderID]
	if !ok {
		return domain.Review{}, fmt.Errorf("review for order %s: %w", orderID, domain.ErrNotFound)
	}
	return rv, nil
}

func (r reader) ListReviews(_ context.Context, chefID string) ([]domain.Review, error) {
	var out []domain.Review
	for _, rv := range r.st.reviews {
		if rv.ChefID == chefID {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r reader) ListNotifications(_ context.Context, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	for i := len(r.st.notifications) - 1; i >= 0; i-- {
		if n := r.st.notifications[i]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r reader) ChefRollups(_ context.Context) ([]domain.ChefRollup, error) {
	byChef := make(map[string]*domain.ChefRollup)
	get := func(id string) *domain.ChefRollup {
		if cr, ok := byChef[id]; ok {
			return cr
		}
		cr := &domain.ChefRollup{ChefID: id}
		byChef[id] = cr
		return cr
	}
	for _, b := range r.st.bids {
		get(b.ChefID).TotalBids++
	}
	for _, o := range r.st.orders {
		if o.Status == domain.OrderCompleted && o.AcceptedChefID != nil {
			get(*o.AcceptedChefID).CompletedOrders++
		}
	}
	sums := make(map[string]float64)
	for _, rv := range r.st.reviews {
		if !rv.Submitted() {
			continue
		}
		cr := get(rv.ChefID)
		cr.ReviewCount++
		sums[rv.ChefID] += rv.Rating
	}
	out := make([]domain.ChefRollup, 0, len(byChef))
	for id, cr := range byChef {
		if cr.ReviewCount > 0 {
			cr.AvgRating = sums[id] / float64(cr.ReviewCount)
		}
		out = append(out, *cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChefID < out[j].ChefID })
	return out, nil
}

type tx struct {
	reader
}

func (t *tx) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *tx) InsertOrder(_ context.Context, o domain.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o domain.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrNotFound)
	}
	t.st.orders[o.ID] = o
	return nil
}

func bidKey(orderID, chefID string) string { return orderID + "|" + chefID }

func (t *tx) InsertBid(_ context.Context, b domain.Bid) error {
	key := bidKey(b.OrderID, b.ChefID)
	if _, ok := t.st.bidKeys[key]; ok {
		return domain.ErrDuplicateBid
	}
	t.st.bids[b.ID] = b
	t.st.bidKeys[key] = b.ID
	return nil
}

func (t *tx) UpdateBid(_ context.Context, b domain.Bid) error {
	if _, ok := t.st.bids[b.ID]; !ok {
		return fmt.Errorf("bid %s: %w", b.ID, domain.ErrNotFound)
	}
	t.st.bids[b.ID] = b
	return nil
}

func (t *tx) LockWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	return t.GetWallet(ctx, userID)
}

func (t *tx) InsertWallet(_ context.Context, w domain.Wallet) error {
	if _, ok := t.st.walletByUser[w.UserID]; ok {
		return fmt.Errorf("wallet for user %s already exists", w.UserID)
	}
	t.st.wallets[w.ID] = w
	t.st.walletByUser[w.UserID] = w.ID
	return nil
}

func (t *tx) SetBalance(_ context.Context, walletID string, balance decimal.Decimal, at time.Time) error {
	w, ok := t.st.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet %s: %w", walletID, domain.ErrNotFound)
	}
	if balance.IsNegative() {
		return domain.ErrInsufficientFunds
	}
	w.Balance = balance
	w.UpdatedAt = at
	t.st.wallets[walletID] = w
	return nil
}

func (t *tx) AppendTransaction(_ context.Context, tr domain.Transaction) error {
	if _, ok := t.st.wallets[tr.WalletID]; !ok {
		return fmt.Errorf("wallet %s: %w", tr.WalletID, domain.ErrNotFound)
	}
	t.st.transactions = append(t.st.transactions, tr)
	return nil
}

func (t *tx) InsertReview(_ context.Context, r domain.Review) error {
	if _, ok := t.st.reviews[r.OrderID]; ok {
		return fmt.Errorf("review for order %s already exists", r.OrderID)
	}
	t.st.reviews[r.OrderID] = r
	return nil
}

func (t *tx) UpdateReview(_ context.Context, r domain.Review) error {
	if _, ok := t.st.reviews[r.OrderID]; !ok {
		return fmt.Errorf("review for order %s: %w", r.OrderID, domain.ErrNotFound)
	}
	t.st.reviews[r.OrderID] = r
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n domain.Notification) error {
	t.st.notifications = append(t.st.notifications, n)
	return nil
}

func (t *tx) MarkNotificationRead(_ context.Context, userID, id string) error {
	for i, n := range t.st.notifications {
		if n.ID == id && n.UserID == userID {
			t.st.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
}

func (t *tx) MarkNotificationDelivered(_ context.Context, userID, id string, at time.Time) error {
	for i, n := range t.st.notifications {
		if n.ID == id && n.UserID == userID {
			if n.DeliveredAt == nil {
				t.st.notifications[i].DeliveredAt = &at
			}
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
}
