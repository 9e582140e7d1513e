package domain

import "time"

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Review is created as an empty placeholder when an order completes and
// filled in by the customer afterwards.
type Review struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	CustomerID  string     `json:"customer_id"`
	ChefID      string     `json:"chef_id"`
	Rating      float64    `json:"rating"`
	Comment     string     `json:"comment"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Submitted reports whether the customer has rated the order.
func (r Review) Submitted() bool { return r.SubmittedAt != nil }

// Notification is the durable record of a personal realtime event.
type Notification struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	IsRead      bool       `json:"is_read"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChefRollup is the per-chef aggregate used by the reporting queries.
type ChefRollup struct {
	ChefID          string  `json:"chef_id"`
	TotalBids       int     `json:"total_bids"`
	CompletedOrders int     `json:"completed_orders"`
	ReviewCount     int     `json:"review_count"`
	AvgRating       float64 `json:"avg_rating"`
}
