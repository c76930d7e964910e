package notification

import (
	"context"
	"fmt"
	"log/slog"
)

// Service records and serves in-app notifications. The event methods are
// fire-and-forget: a failed insert is logged, never propagated, because no
// payment or cycle flow may fail on a missed notification.
type Service struct {
	store Store
}

// NewService creates a new notification service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// JoinRequestReceived tells a group creator about a new application.
func (s *Service) JoinRequestReceived(ctx context.Context, creatorID, groupID, requestID int64) {
	s.record(ctx, &Notification{
		RecipientID: creatorID,
		GroupID:     groupID,
		Kind:        KindJoinRequestReceived,
		Message:     fmt.Sprintf("New join request #%d for your group", requestID),
	})
}

// JoinRequestDecided tells an applicant the creator's decision.
func (s *Service) JoinRequestDecided(ctx context.Context, applicantID, groupID int64, approved bool) {
	message := "Your join request was rejected"
	if approved {
		message = "Your join request was approved, complete your payment to take your slot"
	}
	s.record(ctx, &Notification{
		RecipientID: applicantID,
		GroupID:     groupID,
		Kind:        KindJoinRequestDecided,
		Message:     message,
	})
}

// MembershipActivated tells a payer their slot is secured.
func (s *Service) MembershipActivated(ctx context.Context, recipientID, groupID int64, position int) {
	s.record(ctx, &Notification{
		RecipientID: recipientID,
		GroupID:     groupID,
		Kind:        KindMembershipActivated,
		Message:     fmt.Sprintf("Payment confirmed, you hold slot %d", position),
	})
}

// CycleCompleted tells a collector their payout is on its way.
func (s *Service) CycleCompleted(ctx context.Context, recipientID, groupID int64, cycleNumber int, amount int64) {
	s.record(ctx, &Notification{
		RecipientID: recipientID,
		GroupID:     groupID,
		Kind:        KindCycleCompleted,
		Message:     fmt.Sprintf("Cycle %d completed, your payout of %d kobo is being transferred", cycleNumber, amount),
	})
}

// List returns a user's notifications.
func (s *Service) List(ctx context.Context, recipientID int64, unreadOnly bool) ([]*Notification, error) {
	return s.store.ListByRecipient(ctx, recipientID, unreadOnly)
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, id, recipientID int64) error {
	return s.store.MarkRead(ctx, id, recipientID)
}

func (s *Service) record(ctx context.Context, n *Notification) {
	if err := s.store.Create(ctx, n); err != nil {
		slog.Error("failed to record notification",
			"recipient_id", n.RecipientID, "kind", n.Kind, "error", err)
	}
}
