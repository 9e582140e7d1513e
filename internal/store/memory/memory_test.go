package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
)

func testOrder(id, customerID string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:              id,
		CustomerID:      customerID,
		Title:           "Egusi soup",
		MaxBudget:       decimal.NewFromInt(30),
		DeliveryAddress: "3 Allen Ave",
		Status:          domain.OrderOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestFailedTxLeavesNothingBehind(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, testOrder("o-1", "cust-1")); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, domain.Notification{ID: "n-1", UserID: "cust-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetOrder(ctx, "o-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	ns, err := s.ListNotifications(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestDuplicateBidRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, testOrder("o-1", "cust-1")); err != nil {
			return err
		}
		return tx.InsertBid(ctx, domain.Bid{ID: "b-1", OrderID: "o-1", ChefID: "chef-1", Status: domain.BidPending})
	}))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertBid(ctx, domain.Bid{ID: "b-2", OrderID: "o-1", ChefID: "chef-1", Status: domain.BidPending})
	})
	require.ErrorIs(t, err, domain.ErrDuplicateBid)

	bids, err := s.ListBids(ctx, store.BidFilter{OrderID: "o-1"})
	require.NoError(t, err)
	assert.Len(t, bids, 1)
}

func TestNegativeBalanceRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	w := domain.Wallet{ID: "w-1", UserID: "user-1", Balance: decimal.NewFromInt(5), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.InsertWallet(ctx, w) }))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetBalance(ctx, "w-1", decimal.NewFromInt(-1), now)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := s.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))
}

func TestMarkNotificationReadScopedToOwner(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertNotification(ctx, domain.Notification{ID: "n-1", UserID: "user-1"})
	}))

	err := s.WithTx(ctx, func(tx store.Tx) error { return tx.MarkNotificationRead(ctx, "user-2", "n-1") })
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.MarkNotificationRead(ctx, "user-1", "n-1") }))
	ns, err := s.ListNotifications(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.True(t, ns[0].IsRead)
}

func TestCanceledContextAbortsTx(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.WithTx(ctx, func(tx store.Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
