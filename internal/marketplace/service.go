// Package marketplace runs the order and bid lifecycle: customers post
// orders, chefs bid, the customer accepts one bid, the chef delivers and the
// customer completes, which settles payment through the ledger.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

// Applier publishes the events of a committed operation.
type Applier interface {
	Apply(ctx context.Context, evs []events.Event)
}

type Service struct {
	store   store.Store
	ledger  *wallet.Ledger
	applier Applier
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, ledger *wallet.Ledger, applier Applier, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ledger:  ledger,
		applier: applier,
		logger:  logging.Component(logger, "marketplace"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// effects collects what an operation wants published once it commits.
type effects struct {
	at          time.Time
	events      []events.Event
	transitions []domain.OrderStatus
}

func (fx *effects) emit(kind events.Kind, topic string, data any) {
	fx.events = append(fx.events, events.New(kind, topic, data, fx.at))
}

// notify records a durable notification for userID and queues the matching
// personal event. Both become visible only if the transaction commits.
func (fx *effects) notify(ctx context.Context, tx store.Tx, userID string, kind events.Kind, message string, data any) error {
	n := domain.Notification{
		ID:        newID(),
		UserID:    userID,
		Message:   message,
		Type:      string(kind),
		CreatedAt: fx.at,
	}
	if err := tx.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	ev := events.Personal(kind, userID, message, data, fx.at)
	ev.NotificationID = n.ID
	fx.events = append(fx.events, ev)
	return nil
}

func (fx *effects) transition(o *domain.Order, to domain.OrderStatus) error {
	if err := o.Transition(to, fx.at); err != nil {
		return err
	}
	fx.transitions = append(fx.transitions, to)
	return nil
}

// run executes fn in one store transaction and applies its effects after
// commit. A lost concurrent-update race is retried once against fresh state.
func (s *Service) run(ctx context.Context, op string, fn func(tx store.Tx, fx *effects) error) error {
	var fx *effects
	attempt := func(tx store.Tx) error {
		fx = &effects{at: s.now().UTC()}
		return fn(tx, fx)
	}

	err := s.store.WithTx(ctx, attempt)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		metrics.ConflictRetries.WithLabelValues(op).Inc()
		s.logger.Debug().Err(err).Str("op", op).Msg("retrying after concurrent update")
		err = s.store.WithTx(ctx, attempt)
	}
	if err != nil {
		return err
	}

	for _, st := range fx.transitions {
		metrics.OrderTransitions.WithLabelValues(string(st)).Inc()
	}
	s.applier.Apply(ctx, fx.events)
	return nil
}

// statusKind names the event announcing an order's move into status.
func statusKind(status domain.OrderStatus) events.Kind {
	switch status {
	case domain.OrderOpen:
		return events.OrderCreated
	case domain.OrderAccepted:
		return events.OrderAccepted
	case domain.OrderPreparing:
		return events.OrderPreparing
	case domain.OrderDelivered:
		return events.OrderDelivered
	case domain.OrderCompleted:
		return events.OrderCompleted
	}
	return events.OrderUpdated
}

func (s *Service) CreateOrder(ctx context.Context, customerID string, in domain.NewOrder) (domain.Order, error) {
	if err := in.Validate(); err != nil {
		return domain.Order{}, err
	}

	var out domain.Order
	err := s.run(ctx, "create_order", func(tx store.Tx, fx *effects) error {
		out = domain.Order{
			ID:                    newID(),
			CustomerID:            customerID,
			Title:                 in.Title,
			Description:           in.Description,
			MaxBudget:             in.MaxBudget,
			DeliveryAddress:       in.DeliveryAddress,
			PreferredDeliveryTime: in.PreferredDeliveryTime.UTC(),
			Status:                domain.OrderOpen,
			CreatedAt:             fx.at,
			UpdatedAt:             fx.at,
		}
		if err := tx.InsertOrder(ctx, out); err != nil {
			return err
		}
		fx.transitions = append(fx.transitions, domain.OrderOpen)
		fx.emit(statusKind(out.Status), events.TopicOrders, out)
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return out, nil
}

// PlaceBid records chefID's offer on an open order. A chef gets one bid per
// order whatever became of the earlier one.
func (s *Service) PlaceBid(ctx context.Context, chefID, orderID string, in domain.NewBid) (domain.Bid, error) {
	if err := in.Validate(); err != nil {
		return domain.Bid{}, err
	}

	var out domain.Bid
	err := s.run(ctx, "place_bid", func(tx store.Tx, fx *effects) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderOpen {
			return domain.ErrOrderNotOpen
		}
		existing, err := tx.ListBids(ctx, store.BidFilter{OrderID: orderID, ChefID: chefID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrDuplicateBid
		}

		out = domain.Bid{
			ID:               newID(),
			OrderID:          orderID,
			ChefID:           chefID,
			ProposedPrice:    in.ProposedPrice,
			DeliveryEstimate: in.DeliveryEstimate,
			Message:          in.Message,
			Status:           domain.BidPending,
			CreatedAt:        fx.at,
			UpdatedAt:        fx.at,
		}
		if err := tx.InsertBid(ctx, out); err != nil {
			return err
		}
		fx.emit(events.BidPlaced, events.TopicOrders, out)
		return nil
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("place bid on order %s: %w", orderID, err)
	}
	metrics.BidsPlaced.Inc()
	return out, nil
}

// Acceptance is the result of accepting a bid.
type Acceptance struct {
	OrderID       string             `json:"order_id"`
	OrderStatus   domain.OrderStatus `json:"order_status"`
	AcceptedBidID string             `json:"accepted_bid_id"`
	ChefID        string             `json:"chef_id"`
}

// AcceptBid awards the order to the bid's chef and declines every other bid.
// The order row is locked for the whole update, so of two concurrent
// accepts on one order the second sees it no longer open.
func (s *Service) AcceptBid(ctx context.Context, customerID, bidID string) (Acceptance, error) {
	var out Acceptance
	err := s.run(ctx, "accept_bid", func(tx store.Tx, fx *effects) error {
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, bid.OrderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrNotAuthorized
		}
		if order.Status != domain.OrderOpen {
			return domain.ErrOrderNotOpen
		}

		bids, err := tx.ListBids(ctx, store.BidFilter{OrderID: order.ID})
		if err != nil {
			return err
		}
		var accepted *domain.Bid
		for i := range bids {
			b := &bids[i]
			if b.ID == bidID {
				if b.Status != domain.BidPending {
					return domain.ErrBidNotPending
				}
				b.Status = domain.BidAccepted
				accepted = b
			} else if b.Status == domain.BidPending {
				b.Status = domain.BidDeclined
			} else {
				continue
			}
			b.UpdatedAt = fx.at
			if err := tx.UpdateBid(ctx, *b); err != nil {
				return err
			}
		}
		if accepted == nil {
			return fmt.Errorf("bid %s: %w", bidID, domain.ErrNotFound)
		}

		if err := fx.transition(&order, domain.OrderAccepted); err != nil {
			return err
		}
		chefID := accepted.ChefID
		order.AcceptedChefID = &chefID
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		msg := fmt.Sprintf("Your bid on order '%s' was accepted!", order.Title)
		if err := fx.notify(ctx, tx, chefID, events.BidAccepted, msg, *accepted); err != nil {
			return err
		}
		fx.emit(events.OrderUpdated, events.TopicOrders, order)

		out = Acceptance{
			OrderID:       order.ID,
			OrderStatus:   order.Status,
			AcceptedBidID: accepted.ID,
			ChefID:        chefID,
		}
		return nil
	})
	if err != nil {
		return Acceptance{}, fmt.Errorf("accept bid %s: %w", bidID, err)
	}
	return out, nil
}

// WithdrawBid lets a chef pull a pending bid while the order is still open.
func (s *Service) WithdrawBid(ctx context.Context, chefID, bidID string) (domain.Bid, error) {
	var out domain.Bid
	err := s.run(ctx, "withdraw_bid", func(tx store.Tx, fx *effects) error {
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.ChefID != chefID {
			return domain.ErrNotAuthorized
		}
		order, err := tx.LockOrder(ctx, bid.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderOpen {
			return domain.ErrOrderNotOpen
		}
		// Re-read under the order lock; an accept may have just declined it.
		if bid, err = tx.GetBid(ctx, bidID); err != nil {
			return err
		}
		if bid.Status != domain.BidPending {
			return domain.ErrBidNotPending
		}

		bid.Status = domain.BidWithdrawn
		bid.UpdatedAt = fx.at
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}
		fx.emit(events.BidWithdrawn, events.TopicOrders, bid)
		out = bid
		return nil
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("withdraw bid %s: %w", bidID, err)
	}
	return out, nil
}

// CancelOrder terminates an open order and declines its pending bids.
func (s *Service) CancelOrder(ctx context.Context, customerID, orderID string) (domain.Order, error) {
	var out domain.Order
	err := s.run(ctx, "cancel_order", func(tx store.Tx, fx *effects) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrNotAuthorized
		}
		if order.Status != domain.OrderOpen {
			return domain.ErrOrderNotOpen
		}

		pending, err := tx.ListBids(ctx, store.BidFilter{OrderID: orderID, Status: domain.BidPending})
		if err != nil {
			return err
		}
		for _, b := range pending {
			b.Status = domain.BidDeclined
			b.UpdatedAt = fx.at
			if err := tx.UpdateBid(ctx, b); err != nil {
				return err
			}
		}

		if err := fx.transition(&order, domain.OrderCancelled); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		fx.emit(statusKind(order.Status), events.TopicOrders, order)
		out = order
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return out, nil
}

// advance moves an order the accepted chef is working on into status to and
// tells the customer.
func (s *Service) advance(ctx context.Context, op, chefID, orderID string, to domain.OrderStatus, message string) (domain.Order, error) {
	var out domain.Order
	err := s.run(ctx, op, func(tx store.Tx, fx *effects) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsAcceptedChef(chefID) {
			return domain.ErrNotAuthorized
		}
		if err := fx.transition(&order, to); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		kind := statusKind(to)
		fx.emit(kind, events.TopicOrders, order)
		if err := fx.notify(ctx, tx, order.CustomerID, kind, fmt.Sprintf(message, order.Title), order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s %s: %w", op, orderID, err)
	}
	return out, nil
}

// MarkPreparing is the optional chef step between accepted and delivered.
func (s *Service) MarkPreparing(ctx context.Context, chefID, orderID string) (domain.Order, error) {
	return s.advance(ctx, "prepare_order", chefID, orderID, domain.OrderPreparing, "Your order '%s' is being prepared.")
}

// FulfillOrder marks the order delivered. Only the accepted chef may do so,
// from accepted or preparing.
func (s *Service) FulfillOrder(ctx context.Context, chefID, orderID string) (domain.Order, error) {
	return s.advance(ctx, "fulfill_order", chefID, orderID, domain.OrderDelivered, "Your order '%s' has been delivered.")
}

// Completion is the result of completing an order.
type Completion struct {
	Order        domain.Order  `json:"order"`
	ChefEarnings string        `json:"chef_earnings"`
	Commission   string        `json:"commission"`
	Review       domain.Review `json:"review"`
}

// CompleteOrder closes a delivered order, pays the chef the accepted bid's
// price less commission and opens the review placeholder. Status change,
// settlement and review commit together or not at all.
func (s *Service) CompleteOrder(ctx context.Context, customerID, orderID string) (Completion, error) {
	var out Completion
	err := s.run(ctx, "complete_order", func(tx store.Tx, fx *effects) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrNotAuthorized
		}
		accepted, err := tx.ListBids(ctx, store.BidFilter{OrderID: orderID, Status: domain.BidAccepted})
		if err != nil {
			return err
		}
		if len(accepted) == 0 {
			return domain.ErrNoAcceptedBid
		}
		bid := accepted[0]

		if err := fx.transition(&order, domain.OrderCompleted); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		settlement, err := s.ledger.Settle(ctx, tx, bid.ChefID, bid.ProposedPrice, order.ID)
		if err != nil {
			return err
		}

		review, created, err := s.reviewPlaceholder(ctx, tx, order, bid.ChefID, fx.at)
		if err != nil {
			return err
		}

		fx.emit(statusKind(order.Status), events.TopicOrders, order)
		msg := fmt.Sprintf("Order '%s' completed. You earned %s.", order.Title, settlement.ChefEarnings.StringFixed(2))
		if err := fx.notify(ctx, tx, bid.ChefID, events.OrderCompleted, msg, settlement); err != nil {
			return err
		}
		if created {
			fx.emit(events.ReviewCreated, events.TopicOrders, review)
		}

		out = Completion{
			Order:        order,
			ChefEarnings: settlement.ChefEarnings.StringFixed(2),
			Commission:   settlement.Commission.StringFixed(2),
			Review:       review,
		}
		return nil
	})
	if err != nil {
		return Completion{}, fmt.Errorf("complete order %s: %w", orderID, err)
	}
	return out, nil
}

func (s *Service) reviewPlaceholder(ctx context.Context, tx store.Tx, order domain.Order, chefID string, at time.Time) (domain.Review, bool, error) {
	r, err := tx.GetReview(ctx, order.ID)
	if err == nil {
		return r, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Review{}, false, err
	}
	r = domain.Review{
		ID:         newID(),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ChefID:     chefID,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := tx.InsertReview(ctx, r); err != nil {
		return domain.Review{}, false, err
	}
	return r, true, nil
}

// SubmitReview fills in the placeholder review of a completed order.
// Resubmitting overwrites the previous rating.
func (s *Service) SubmitReview(ctx context.Context, customerID, orderID string, rating float64, comment string) (domain.Review, error) {
	if rating < domain.MinRating || rating > domain.MaxRating {
		return domain.Review{}, domain.NewValidationError("rating", "rating must be between 0 and 5")
	}
	if len(comment) > 2000 {
		return domain.Review{}, domain.NewValidationError("comment", "comment must be at most 2000 characters")
	}

	var out domain.Review
	err := s.run(ctx, "submit_review", func(tx store.Tx, fx *effects) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrNotAuthorized
		}
		if order.Status != domain.OrderCompleted {
			return domain.InvalidTransition(order.Status, domain.OrderCompleted)
		}
		r, err := tx.GetReview(ctx, orderID)
		if err != nil {
			return err
		}

		at := fx.at
		r.Rating = rating
		r.Comment = comment
		r.SubmittedAt = &at
		r.UpdatedAt = at
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}
		msg := fmt.Sprintf("You received a %.1f-star review for '%s'.", rating, order.Title)
		if err := fx.notify(ctx, tx, r.ChefID, events.ReviewUpdated, msg, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("review order %s: %w", orderID, err)
	}
	return out, nil
}
