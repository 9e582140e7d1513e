package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus is the state of a chef's offer.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidDeclined  BidStatus = "declined"
	BidWithdrawn BidStatus = "withdrawn"
)

// Bid is a chef's priced, timed offer against an open order.
type Bid struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	ChefID           string          `json:"chef_id"`
	ProposedPrice    decimal.Decimal `json:"proposed_price"`
	DeliveryEstimate time.Duration   `json:"delivery_estimate"`
	Message          string          `json:"message"`
	Status           BidStatus       `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MarshalJSON renders the delivery estimate as a duration string plus whole
// seconds instead of nanoseconds.
func (b Bid) MarshalJSON() ([]byte, error) {
	type plain Bid
	return json.Marshal(struct {
		plain
		DeliveryEstimate        string `json:"delivery_estimate"`
		DeliveryEstimateSeconds int64  `json:"delivery_estimate_seconds"`
	}{plain(b), b.DeliveryEstimate.String(), int64(b.DeliveryEstimate / time.Second)})
}

// NewBid is the input a chef submits when bidding.
type NewBid struct {
	ProposedPrice    decimal.Decimal
	DeliveryEstimate time.Duration
	Message          string
}

func (n NewBid) Validate() error {
	if !ValidAmount(n.ProposedPrice) {
		return NewValidationError("proposed_price", "proposed_price must be greater than zero with at most 2 decimal places")
	}
	if n.DeliveryEstimate <= 0 {
		return NewValidationError("delivery_estimate", "delivery_estimate must be positive")
	}
	if len(n.Message) > 2000 {
		return NewValidationError("message", "message must be at most 2000 characters")
	}
	return nil
}
