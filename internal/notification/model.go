package notification

import (
	"context"
	"errors"
	"time"
)

// Kind classifies a notification for client rendering.
type Kind string

const (
	KindJoinRequestReceived Kind = "join_request_received"
	KindJoinRequestDecided  Kind = "join_request_decided"
	KindMembershipActivated Kind = "membership_activated"
	KindCycleCompleted      Kind = "cycle_completed"
)

// Notification is an in-app message for a user. Delivery is best-effort;
// no business flow depends on a notification landing.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	GroupID     int64     `json:"group_id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Common errors
var ErrNotificationNotFound = errors.New("notification not found")

// Store is the persistence contract for notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
}
