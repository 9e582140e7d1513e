package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderAccepted  OrderStatus = "accepted"
	OrderPreparing OrderStatus = "preparing"
	OrderDelivered OrderStatus = "delivered"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every declared order status.
var OrderStatuses = []OrderStatus{
	OrderOpen, OrderAccepted, OrderPreparing, OrderDelivered, OrderCompleted, OrderCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderOpen:      {OrderAccepted, OrderCancelled},
	OrderAccepted:  {OrderPreparing, OrderDelivered},
	OrderPreparing: {OrderDelivered},
	OrderDelivered: {OrderCompleted},
}

// Valid reports whether s is a declared status.
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// HasChef reports whether an order in status s must carry an accepted chef.
func (s OrderStatus) HasChef() bool {
	switch s {
	case OrderAccepted, OrderPreparing, OrderDelivered, OrderCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the order state machine allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a customer's request for prepared food within a budget and delivery window.
type Order struct {
	ID                    string          `json:"id"`
	CustomerID            string          `json:"customer_id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	MaxBudget             decimal.Decimal `json:"max_budget"`
	DeliveryAddress       string          `json:"delivery_address"`
	PreferredDeliveryTime time.Time       `json:"preferred_delivery_time"`
	AcceptedChefID        *string         `json:"accepted_chef_id"`
	Status                OrderStatus     `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Transition moves the order to status to, stamping updatedAt.
// It returns ErrInvalidTransition when the state machine forbids the move.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return InvalidTransition(o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// IsAcceptedChef reports whether userID is the chef this order was awarded to.
func (o Order) IsAcceptedChef(userID string) bool {
	return o.AcceptedChefID != nil && *o.AcceptedChefID == userID
}

// NewOrder is the validated input for creating an order.
type NewOrder struct {
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	MaxBudget             decimal.Decimal `json:"max_budget"`
	DeliveryAddress       string          `json:"delivery_address"`
	PreferredDeliveryTime time.Time       `json:"preferred_delivery_time"`
}

// Validate checks the order input field by field.
func (n NewOrder) Validate() error {
	switch {
	case n.Title == "":
		return NewValidationError("title", "title is required")
	case len(n.Title) > 200:
		return NewValidationError("title", "title must be at most 200 characters")
	case n.Description == "":
		return NewValidationError("description", "description is required")
	case !ValidAmount(n.MaxBudget):
		return NewValidationError("max_budget", "max_budget must be greater than zero with at most 2 decimal places")
	case n.DeliveryAddress == "":
		return NewValidationError("delivery_address", "delivery_address is required")
	case n.PreferredDeliveryTime.IsZero():
		return NewValidationError("preferred_delivery_time", "preferred_delivery_time is required")
	}
	return nil
}
