// Package store defines the persistence port shared by the ledger, the order
// state machine and the reporting queries. Implementations live in
// store/postgres (pgx) and store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
)

// OrderFilter narrows ListOrders. Zero fields are ignored.
type OrderFilter struct {
	CustomerID     string
	AcceptedChefID string
	Status         domain.OrderStatus
}

// BidFilter narrows ListBids. Zero fields are ignored.
type BidFilter struct {
	OrderID string
	ChefID  string
	Status  domain.BidStatus
}

// Reader is the read side, usable inside and outside a transaction.
type Reader interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	CountOrdersByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)

	GetBid(ctx context.Context, id string) (domain.Bid, error)
	ListBids(ctx context.Context, f BidFilter) ([]domain.Bid, error)

	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	ListWallets(ctx context.Context) ([]domain.Wallet, error)
	ListTransactions(ctx context.Context, walletID string) ([]domain.Transaction, error)

	GetReview(ctx context.Context, orderID string) (domain.Review, error)
	ListReviews(ctx context.Context, chefID string) ([]domain.Review, error)

	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)

	ChefRollups(ctx context.Context) ([]domain.ChefRollup, error)
}

// Tx is a unit of work. Everything written through a Tx becomes visible
// atomically when the surrounding WithTx returns nil, or not at all.
type Tx interface {
	Reader

	// LockOrder reads the order and holds it against concurrent writers
	// until the transaction ends.
	LockOrder(ctx context.Context, id string) (domain.Order, error)
	InsertOrder(ctx context.Context, o domain.Order) error
	UpdateOrder(ctx context.Context, o domain.Order) error

	// InsertBid returns domain.ErrDuplicateBid when the (order, chef) pair
	// already has a bid.
	InsertBid(ctx context.Context, b domain.Bid) error
	UpdateBid(ctx context.Context, b domain.Bid) error

	// LockWallet reads the wallet of userID and holds it until the
	// transaction ends. It returns domain.ErrNotFound when none exists.
	LockWallet(ctx context.Context, userID string) (domain.Wallet, error)
	InsertWallet(ctx context.Context, w domain.Wallet) error
	SetBalance(ctx context.Context, walletID string, balance decimal.Decimal, at time.Time) error
	AppendTransaction(ctx context.Context, t domain.Transaction) error

	InsertReview(ctx context.Context, r domain.Review) error
	UpdateReview(ctx context.Context, r domain.Review) error

	InsertNotification(ctx context.Context, n domain.Notification) error
	MarkNotificationRead(ctx context.Context, userID, id string) error
	// MarkNotificationDelivered stamps the first out-of-band delivery of a
	// notification; later calls keep the first time.
	MarkNotificationDelivered(ctx context.Context, userID, id string, at time.Time) error
}

// Store opens transactions and serves reads outside of them.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// WithRetry runs fn in a transaction and, when it loses a concurrent-update
// race, runs it once more against fresh state. fn must not carry results
// across attempts.
func WithRetry(ctx context.Context, s Store, fn func(Tx) error) error {
	err := s.WithTx(ctx, fn)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		err = s.WithTx(ctx, fn)
	}
	return err
}
