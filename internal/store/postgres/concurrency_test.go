package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/marketplace"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/store/postgres"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

type discard struct{}

func (discard) Apply(context.Context, []events.Event) {}

func newService(t *testing.T, s *postgres.Store) (*marketplace.Service, *wallet.Ledger) {
	t.Helper()
	ledger := wallet.New(s, wallet.Config{CommissionRate: decimal.RequireFromString("0.05")}, zerolog.Nop())
	return marketplace.NewService(s, ledger, discard{}, zerolog.Nop()), ledger
}

// race starts n copies of fn together and returns their errors.
func race(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func openOrder(t *testing.T, svc *marketplace.Service, customer string) domain.Order {
	t.Helper()
	o, err := svc.CreateOrder(context.Background(), customer, domain.NewOrder{
		Title:                 "Suya platter",
		Description:           "extra pepper",
		MaxBudget:             decimal.RequireFromString("60.00"),
		DeliveryAddress:       "4 Awolowo Rd",
		PreferredDeliveryTime: time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	return o
}

func TestConcurrentAcceptOnPostgres(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	svc, _ := newService(t, s)
	customer := "cust-" + uuid.NewString()
	o := openOrder(t, svc, customer)

	var bids []domain.Bid
	for _, price := range []string{"40.00", "45.00", "50.00"} {
		b, err := svc.PlaceBid(ctx, "chef-"+uuid.NewString(), o.ID, domain.NewBid{
			ProposedPrice:    decimal.RequireFromString(price),
			DeliveryEstimate: time.Hour,
		})
		require.NoError(t, err)
		bids = append(bids, b)
	}

	errs := race(len(bids), func(i int) error {
		_, err := svc.AcceptBid(ctx, customer, bids[i].ID)
		return err
	})

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrOrderNotOpen):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)

	accepted, err := s.ListBids(ctx, store.BidFilter{OrderID: o.ID, Status: domain.BidAccepted})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAccepted, got.Status)
	require.NotNil(t, got.AcceptedChefID)
	assert.Equal(t, accepted[0].ChefID, *got.AcceptedChefID)
}

func TestConcurrentBidsBySameChefOnPostgres(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	svc, _ := newService(t, s)
	o := openOrder(t, svc, "cust-"+uuid.NewString())
	chef := "chef-" + uuid.NewString()

	errs := race(4, func(int) error {
		_, err := svc.PlaceBid(ctx, chef, o.ID, domain.NewBid{
			ProposedPrice:    decimal.RequireFromString("30.00"),
			DeliveryEstimate: time.Hour,
		})
		return err
	})

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateBid):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, dup)

	bids, err := s.ListBids(ctx, store.BidFilter{OrderID: o.ID, ChefID: chef})
	require.NoError(t, err)
	assert.Len(t, bids, 1)
}

func TestUniqueBidConstraintWithoutOrderLock(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	o := testOrder("cust-" + uuid.NewString())
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.InsertOrder(ctx, o) }))
	chef := "chef-" + uuid.NewString()

	errs := race(2, func(int) error {
		return s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertBid(ctx, testBid(o.ID, chef))
		})
	})

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateBid):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
}

func TestConcurrentCreditsOnPostgres(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, ledger := newService(t, s)
	user := "chef-" + uuid.NewString()

	const n = 8
	errs := race(n, func(int) error {
		_, err := ledger.Credit(ctx, user, decimal.RequireFromString("1.25"), "tip")
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	a, err := ledger.Verify(ctx, user)
	require.NoError(t, err)
	assert.True(t, a.Consistent)
	assert.Equal(t, n, a.Transactions)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("10.00")), a.Balance.String())
}

func TestNotificationDeliveredKeepsFirstTime(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	n := domain.Notification{ID: uuid.NewString(), UserID: user, Message: "Your order has been delivered.", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.InsertNotification(ctx, n) }))

	first := time.Now().UTC().Truncate(time.Microsecond)
	for _, at := range []time.Time{first, first.Add(time.Hour)} {
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.MarkNotificationDelivered(ctx, user, n.ID, at)
		}))
	}

	ns, err := s.ListNotifications(ctx, user)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	require.NotNil(t, ns[0].DeliveredAt)
	assert.True(t, first.Equal(*ns[0].DeliveredAt))

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.MarkNotificationDelivered(ctx, "someone-else", n.ID, first)
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
