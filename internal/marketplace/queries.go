package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
)

func newID() string { return uuid.NewString() }

func (s *Service) Order(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// OpenOrders lists orders chefs can still bid on, newest first.
func (s *Service) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, store.OrderFilter{Status: domain.OrderOpen})
}

func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, store.OrderFilter{CustomerID: customerID})
}

// ChefOrders lists orders awarded to chefID.
func (s *Service) ChefOrders(ctx context.Context, chefID string) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, store.OrderFilter{AcceptedChefID: chefID})
}

// OrderBids lists the bids on an order. Only the owning customer may see them.
func (s *Service) OrderBids(ctx context.Context, customerID, orderID string) ([]domain.Bid, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, fmt.Errorf("bids of order %s: %w", orderID, domain.ErrNotAuthorized)
	}
	return s.store.ListBids(ctx, store.BidFilter{OrderID: orderID})
}

func (s *Service) ChefBids(ctx context.Context, chefID string) ([]domain.Bid, error) {
	return s.store.ListBids(ctx, store.BidFilter{ChefID: chefID})
}

// OrderReview returns the review of an order to its customer or chef.
func (s *Service) OrderReview(ctx context.Context, userID, orderID string) (domain.Review, error) {
	r, err := s.store.GetReview(ctx, orderID)
	if err != nil {
		return domain.Review{}, err
	}
	if r.CustomerID != userID && r.ChefID != userID {
		return domain.Review{}, fmt.Errorf("review of order %s: %w", orderID, domain.ErrNotAuthorized)
	}
	return r, nil
}

// Chats answers chat membership from reads alone. Nodes that serve only
// websockets use it in place of a Service.
type Chats struct {
	store store.Reader
}

func NewChats(st store.Reader) Chats { return Chats{store: st} }

// CanJoinChat reports whether userID takes part in the order: its customer
// or its accepted chef.
func (c Chats) CanJoinChat(ctx context.Context, userID, orderID string) (bool, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return order.CustomerID == userID || order.IsAcceptedChef(userID), nil
}

func (s *Service) CanJoinChat(ctx context.Context, userID, orderID string) (bool, error) {
	return NewChats(s.store).CanJoinChat(ctx, userID, orderID)
}
