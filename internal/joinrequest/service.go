package joinrequest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/membership"
	"github.com/tobiloba/ajopool/internal/slot"
	"github.com/tobiloba/ajopool/pkg/metrics"
)

// GroupGetter supplies group state for request validation.
type GroupGetter interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
}

// Members answers membership questions during validation.
type Members interface {
	Get(ctx context.Context, groupID, userID int64) (*membership.Membership, error)
	CountActive(ctx context.Context, groupID int64) (int, error)
}

// Notifier delivers best-effort notifications about request decisions.
type Notifier interface {
	JoinRequestReceived(ctx context.Context, creatorID, groupID, requestID int64)
	JoinRequestDecided(ctx context.Context, applicantID, groupID int64, approved bool)
}

// Service holds join request business logic. Approval admits nobody: it only
// licenses the applicant to pay, and membership appears when that payment is
// reconciled.
type Service struct {
	store    Store
	groups   GroupGetter
	members  Members
	slots    slot.Ledger
	notifier Notifier
	ttl      time.Duration
}

// NewService creates a new join request service. ttl bounds how long an open
// request (and its slot reservation) can sit undecided or unpaid.
func NewService(store Store, groups GroupGetter, members Members, slots slot.Ledger, notifier Notifier, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		groups:   groups,
		members:  members,
		slots:    slots,
		notifier: notifier,
		ttl:      ttl,
	}
}

// Request files a join request against a forming group. A preferred slot is
// reserved on the ledger first, so two applicants wanting the same slot
// resolve on the slot row: the loser gets ErrSlotUnavailable and can retry
// with a different choice.
func (s *Service) Request(ctx context.Context, groupID, userID int64, preferredSlot *int) (*JoinRequest, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	if g.Status != group.StatusForming {
		return nil, ErrGroupNotForming
	}
	if g.CreatorID == userID {
		return nil, ErrCreatorJoin
	}

	m, err := s.members.Get(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Status == membership.StatusActive {
		return nil, ErrAlreadyMember
	}

	count, err := s.members.CountActive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if count >= g.TotalSlots {
		return nil, ErrGroupFull
	}

	if preferredSlot != nil {
		if err := s.slots.Reserve(ctx, groupID, *preferredSlot, userID); err != nil {
			return nil, err
		}
	}

	jr, err := s.store.Create(ctx, &JoinRequest{
		GroupID:       groupID,
		UserID:        userID,
		PreferredSlot: preferredSlot,
		ExpiresAt:     time.Now().Add(s.ttl),
	})
	if err != nil {
		if preferredSlot != nil {
			s.releaseReservation(ctx, groupID, *preferredSlot, userID)
		}
		return nil, err
	}

	s.notifier.JoinRequestReceived(ctx, g.CreatorID, groupID, jr.ID)

	return jr, nil
}

// Approve moves a pending request to approved. Creator-only. The applicant
// still has to pay before the deadline; nothing else changes here.
func (s *Service) Approve(ctx context.Context, requestID, callerID int64) (*JoinRequest, error) {
	jr, err := s.authorizeDecision(ctx, requestID, callerID)
	if err != nil {
		return nil, err
	}

	moved, err := s.store.UpdateStatus(ctx, requestID, StatusPending, StatusApproved)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotPending
	}
	jr.Status = StatusApproved

	s.notifier.JoinRequestDecided(ctx, jr.UserID, jr.GroupID, true)

	return jr, nil
}

// Reject moves a pending request to rejected and frees any reserved slot.
func (s *Service) Reject(ctx context.Context, requestID, callerID int64) (*JoinRequest, error) {
	jr, err := s.authorizeDecision(ctx, requestID, callerID)
	if err != nil {
		return nil, err
	}

	moved, err := s.store.UpdateStatus(ctx, requestID, StatusPending, StatusRejected)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotPending
	}
	jr.Status = StatusRejected

	if jr.PreferredSlot != nil {
		s.releaseReservation(ctx, jr.GroupID, *jr.PreferredSlot, jr.UserID)
	}

	s.notifier.JoinRequestDecided(ctx, jr.UserID, jr.GroupID, false)

	return jr, nil
}

// GetApproved returns the user's approved request for a group, nil if none.
// Implements the reconciler's join request lookup.
func (s *Service) GetApproved(ctx context.Context, groupID, userID int64) (*JoinRequest, error) {
	return s.store.GetApproved(ctx, groupID, userID)
}

// MarkCompleted retires an approved request once its payment has been
// applied. A request that already left approved is fine; the membership is
// what matters.
func (s *Service) MarkCompleted(ctx context.Context, requestID int64) error {
	_, err := s.store.UpdateStatus(ctx, requestID, StatusApproved, StatusCompleted)
	return err
}

// ListByGroup returns a group's join requests for its creator.
func (s *Service) ListByGroup(ctx context.Context, groupID, callerID int64) ([]*JoinRequest, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	if g.CreatorID != callerID {
		return nil, ErrNotGroupCreator
	}
	return s.store.ListByGroup(ctx, groupID)
}

// ExpireStale closes open requests past their deadline and frees their slot
// reservations. Run periodically by the sweeper; each request is moved with
// a conditional update, so a concurrent payment completing the request wins
// cleanly.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.store.ListExpiredOpen(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, jr := range stale {
		moved, err := s.store.UpdateStatus(ctx, jr.ID, jr.Status, StatusExpired)
		if err != nil {
			slog.Error("failed to expire join request", "request_id", jr.ID, "error", err)
			continue
		}
		if !moved {
			continue
		}

		if jr.PreferredSlot != nil {
			s.releaseReservation(ctx, jr.GroupID, *jr.PreferredSlot, jr.UserID)
		}

		metrics.JoinRequestsExpired.Inc()
		expired++
	}

	return expired, nil
}

// authorizeDecision loads the request and checks the caller created its group.
func (s *Service) authorizeDecision(ctx context.Context, requestID, callerID int64) (*JoinRequest, error) {
	jr, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrRequestNotFound
	}

	g, err := s.groups.GetByID(ctx, jr.GroupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	if g.CreatorID != callerID {
		return nil, ErrNotGroupCreator
	}

	return jr, nil
}

// releaseReservation is best-effort: a reservation that was already assigned
// or released is a no-op on the ledger.
func (s *Service) releaseReservation(ctx context.Context, groupID int64, number int, userID int64) {
	if err := s.slots.Release(ctx, groupID, number, userID); err != nil && !errors.Is(err, slot.ErrSlotNotFound) {
		slog.Error("failed to release slot reservation",
			"group_id", groupID, "slot", number, "user_id", userID, "error", err)
	}
}
