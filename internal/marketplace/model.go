package marketplace

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
)

// CreateOrderRequest is the body of POST /orders/create.
type CreateOrderRequest struct {
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	MaxBudget             decimal.Decimal `json:"max_budget"`
	DeliveryAddress       string          `json:"delivery_address"`
	PreferredDeliveryTime time.Time       `json:"preferred_delivery_time"`
}

func (r CreateOrderRequest) toDomain() domain.NewOrder {
	return domain.NewOrder{
		Title:                 strings.TrimSpace(r.Title),
		Description:           strings.TrimSpace(r.Description),
		MaxBudget:             r.MaxBudget,
		DeliveryAddress:       strings.TrimSpace(r.DeliveryAddress),
		PreferredDeliveryTime: r.PreferredDeliveryTime,
	}
}

// PlaceBidRequest is the body of POST /orders/:id/bid. The estimate is a Go
// duration ("90m", "2h") or a clock duration ("02:00:00").
type PlaceBidRequest struct {
	ProposedPrice    decimal.Decimal `json:"proposed_price"`
	DeliveryEstimate string          `json:"delivery_estimate"`
	Message          string          `json:"message"`
}

func (r PlaceBidRequest) toDomain() (domain.NewBid, error) {
	est, err := parseEstimate(r.DeliveryEstimate)
	if err != nil {
		return domain.NewBid{}, domain.NewValidationError("delivery_estimate", err.Error())
	}
	return domain.NewBid{
		ProposedPrice:    r.ProposedPrice,
		DeliveryEstimate: est,
		Message:          strings.TrimSpace(r.Message),
	}, nil
}

func parseEstimate(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("delivery_estimate is required")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("delivery_estimate %q is not a duration", s)
	}
	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("delivery_estimate %q is not a duration", s)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}

// ReviewRequest is the body of POST /orders/:id/review.
type ReviewRequest struct {
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment"`
}
