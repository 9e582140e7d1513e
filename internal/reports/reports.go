// Package reports computes the read-only aggregates behind the chef
// leaderboard, chef dashboards and the admin dashboard.
package reports

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
)

const (
	DefaultTopChefs = 10
	MaxTopChefs     = 20
)

type Service struct {
	store      store.Reader
	platformID string
	now        func() time.Time
}

type Option func(*Service)

// WithClock sets the clock that decides what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Reader, platformAccountID string, opts ...Option) *Service {
	s := &Service{store: st, platformID: platformAccountID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today returns the bounds of the current UTC calendar day.
func (s *Service) today() (start, end time.Time) {
	now := s.now().UTC()
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// successRate is completed orders over bids placed, 0 without bids.
func successRate(completed, bids int) float64 {
	if bids == 0 {
		return 0
	}
	return float64(completed) / float64(bids)
}

// ChefSummary is one row of the chef leaderboard.
type ChefSummary struct {
	ChefID          string  `json:"chef_id"`
	AvgRating       float64 `json:"avg_rating"`
	ReviewCount     int     `json:"review_count"`
	CompletedOrders int     `json:"completed_orders"`
	TotalBids       int     `json:"total_bids"`
	SuccessRate     float64 `json:"success_rate"`
}

func summarize(cr domain.ChefRollup) ChefSummary {
	return ChefSummary{
		ChefID:          cr.ChefID,
		AvgRating:       cr.AvgRating,
		ReviewCount:     cr.ReviewCount,
		CompletedOrders: cr.CompletedOrders,
		TotalBids:       cr.TotalBids,
		SuccessRate:     successRate(cr.CompletedOrders, cr.TotalBids),
	}
}

// TopChefs ranks chefs by average rating, then success rate, then completed
// orders, ties broken by chef id. limit is clamped to [1, MaxTopChefs].
func (s *Service) TopChefs(ctx context.Context, limit int) ([]ChefSummary, error) {
	if limit <= 0 {
		limit = DefaultTopChefs
	}
	limit = min(limit, MaxTopChefs)

	rollups, err := s.store.ChefRollups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChefSummary, 0, len(rollups))
	for _, cr := range rollups {
		out = append(out, summarize(cr))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AvgRating != b.AvgRating {
			return a.AvgRating > b.AvgRating
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.CompletedOrders != b.CompletedOrders {
			return a.CompletedOrders > b.CompletedOrders
		}
		return a.ChefID < b.ChefID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) rollup(ctx context.Context, chefID string) (domain.ChefRollup, error) {
	rollups, err := s.store.ChefRollups(ctx)
	if err != nil {
		return domain.ChefRollup{}, err
	}
	for _, cr := range rollups {
		if cr.ChefID == chefID {
			return cr, nil
		}
	}
	return domain.ChefRollup{ChefID: chefID}, nil
}

// Profile is the public view of a chef.
type Profile struct {
	ChefSummary
	Reviews []domain.Review `json:"reviews"`
}

// ChefProfile returns the chef's rollup and submitted reviews, newest first.
// A chef with no activity is NotFound.
func (s *Service) ChefProfile(ctx context.Context, chefID string) (Profile, error) {
	cr, err := s.rollup(ctx, chefID)
	if err != nil {
		return Profile{}, err
	}
	if cr == (domain.ChefRollup{ChefID: chefID}) {
		return Profile{}, domain.ErrNotFound
	}
	all, err := s.store.ListReviews(ctx, chefID)
	if err != nil {
		return Profile{}, err
	}
	reviews := []domain.Review{}
	for _, r := range all {
		if r.Submitted() {
			reviews = append(reviews, r)
		}
	}
	return Profile{ChefSummary: summarize(cr), Reviews: reviews}, nil
}

// ChefStats is the signed-in chef's own dashboard.
type ChefStats struct {
	Balance              decimal.Decimal `json:"balance"`
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
	TodayEarnings        decimal.Decimal `json:"today_earnings"`
	CompletedOrders      int             `json:"completed_orders"`
	CompletedOrdersToday int             `json:"completed_orders_today"`
	TotalBids            int             `json:"total_bids"`
	PendingBids          int             `json:"pending_bids"`
	AcceptedBids         int             `json:"accepted_bids"`
	SuccessRate          float64         `json:"success_rate"`
	AvgRating            float64         `json:"avg_rating"`
}

func (s *Service) ChefStats(ctx context.Context, chefID string) (ChefStats, error) {
	start, end := s.today()
	out := ChefStats{Balance: decimal.Zero, TotalEarnings: decimal.Zero, TodayEarnings: decimal.Zero}

	w, err := s.store.GetWallet(ctx, chefID)
	switch {
	case err == nil:
		out.Balance = w.Balance
		txs, err := s.store.ListTransactions(ctx, w.ID)
		if err != nil {
			return ChefStats{}, err
		}
		for _, t := range txs {
			if t.Type != domain.TxCredit {
				continue
			}
			out.TotalEarnings = out.TotalEarnings.Add(t.Amount)
			if within(t.CreatedAt, start, end) {
				out.TodayEarnings = out.TodayEarnings.Add(t.Amount)
			}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return ChefStats{}, err
	}

	completed, err := s.store.ListOrders(ctx, store.OrderFilter{AcceptedChefID: chefID, Status: domain.OrderCompleted})
	if err != nil {
		return ChefStats{}, err
	}
	out.CompletedOrders = len(completed)
	for _, o := range completed {
		if within(o.UpdatedAt, start, end) {
			out.CompletedOrdersToday++
		}
	}

	bids, err := s.store.ListBids(ctx, store.BidFilter{ChefID: chefID})
	if err != nil {
		return ChefStats{}, err
	}
	out.TotalBids = len(bids)
	for _, b := range bids {
		switch b.Status {
		case domain.BidPending:
			out.PendingBids++
		case domain.BidAccepted:
			out.AcceptedBids++
		}
	}
	out.SuccessRate = successRate(out.CompletedOrders, out.TotalBids)

	cr, err := s.rollup(ctx, chefID)
	if err != nil {
		return ChefStats{}, err
	}
	out.AvgRating = cr.AvgRating
	return out, nil
}

// Dashboard is the platform overview for admins.
type Dashboard struct {
	PlatformBalance      decimal.Decimal            `json:"platform_balance"`
	TotalCommission      decimal.Decimal            `json:"total_commission"`
	TodayCommission      decimal.Decimal            `json:"today_commission"`
	OrdersByStatus       map[domain.OrderStatus]int `json:"orders_by_status"`
	TotalOrders          int                        `json:"total_orders"`
	CompletedOrdersToday int                        `json:"completed_orders_today"`
	TotalBids            int                        `json:"total_bids"`
	Wallets              int                        `json:"wallets"`
}

func (s *Service) AdminDashboard(ctx context.Context) (Dashboard, error) {
	start, end := s.today()
	out := Dashboard{
		PlatformBalance: decimal.Zero,
		TotalCommission: decimal.Zero,
		TodayCommission: decimal.Zero,
		OrdersByStatus:  make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
	}

	if s.platformID != "" {
		w, err := s.store.GetWallet(ctx, s.platformID)
		switch {
		case err == nil:
			out.PlatformBalance = w.Balance
			txs, err := s.store.ListTransactions(ctx, w.ID)
			if err != nil {
				return Dashboard{}, err
			}
			for _, t := range txs {
				if t.Type != domain.TxCommission {
					continue
				}
				out.TotalCommission = out.TotalCommission.Add(t.Amount)
				if within(t.CreatedAt, start, end) {
					out.TodayCommission = out.TodayCommission.Add(t.Amount)
				}
			}
		case !errors.Is(err, domain.ErrNotFound):
			return Dashboard{}, err
		}
	}

	counts, err := s.store.CountOrdersByStatus(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	for _, st := range domain.OrderStatuses {
		out.OrdersByStatus[st] = counts[st]
		out.TotalOrders += counts[st]
	}

	completed, err := s.store.ListOrders(ctx, store.OrderFilter{Status: domain.OrderCompleted})
	if err != nil {
		return Dashboard{}, err
	}
	for _, o := range completed {
		if within(o.UpdatedAt, start, end) {
			out.CompletedOrdersToday++
		}
	}

	rollups, err := s.store.ChefRollups(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	for _, cr := range rollups {
		out.TotalBids += cr.TotalBids
	}

	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	out.Wallets = len(wallets)
	return out, nil
}
