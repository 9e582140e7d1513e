package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/db"
	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/store/postgres"
)

// newStore connects to DATABASE_URL. Tests are skipped without one.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Connect(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	s := postgres.New(pool)
	t.Cleanup(s.Close)
	return s
}

func testOrder(customerID string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:                    uuid.NewString(),
		CustomerID:            customerID,
		Title:                 "Moi moi",
		Description:           "two wraps each",
		MaxBudget:             decimal.RequireFromString("25.50"),
		DeliveryAddress:       "7 Ring Rd",
		PreferredDeliveryTime: now.Add(2 * time.Hour),
		Status:                domain.OrderOpen,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func testBid(orderID, chefID string) domain.Bid {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Bid{
		ID:               uuid.NewString(),
		OrderID:          orderID,
		ChefID:           chefID,
		ProposedPrice:    decimal.RequireFromString("20"),
		DeliveryEstimate: 90 * time.Minute,
		Status:           domain.BidPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestOrderAndBidRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	customer := "cust-" + uuid.NewString()
	chef := "chef-" + uuid.NewString()
	o := testOrder(customer)
	b := testBid(o.ID, chef)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.InsertBid(ctx, b)
	}))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Title, got.Title)
	assert.True(t, o.MaxBudget.Equal(got.MaxBudget))
	assert.Nil(t, got.AcceptedChefID)

	bids, err := s.ListBids(ctx, store.BidFilter{OrderID: o.ID})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, 90*time.Minute, bids[0].DeliveryEstimate)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		again := testBid(o.ID, chef)
		return tx.InsertBid(ctx, again)
	})
	require.ErrorIs(t, err, domain.ErrDuplicateBid)

	_, err = s.GetOrder(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAcceptedOrderRequiresChef(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	o := testOrder("cust-" + uuid.NewString())
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.InsertOrder(ctx, o) }))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		o.Status = domain.OrderAccepted
		return tx.UpdateOrder(ctx, o)
	})
	require.Error(t, err, "accepted order without chef must violate the check constraint")
}

func TestWalletBalanceCannotGoNegative(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	w := domain.Wallet{ID: uuid.NewString(), UserID: "user-" + uuid.NewString(), Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.InsertWallet(ctx, w) }))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetBalance(ctx, w.ID, decimal.RequireFromString("-1"), now)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	o := testOrder("cust-" + uuid.NewString())
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
