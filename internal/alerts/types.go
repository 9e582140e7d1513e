package alerts

import (
	"encoding/json"
	"time"
)

// Task type constants
const (
	TaskUserEvent  = "alert:user_event"
	TaskAdminAlert = "alert:admin"
)

// Queue names and their worker priorities.
const (
	QueueUser  = "user"
	QueueAdmin = "admin"
)

// Admin alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// UserEventPayload carries a personal realtime event to the alert worker,
// which may reach users who were offline when it was published.
type UserEventPayload struct {
	UserID         string          `json:"user_id"`
	NotificationID string          `json:"notification_id,omitempty"`
	Kind           string          `json:"kind"`
	Message        string          `json:"message"`
	Data           json.RawMessage `json:"data,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// AdminAlertPayload reports an operational problem to admins.
type AdminAlertPayload struct {
	Severity string    `json:"severity"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
}
