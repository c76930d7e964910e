package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/membership"
)

// Initialization errors
var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrGroupNotForming   = errors.New("group is not accepting entry payments")
	ErrGroupNotActive    = errors.New("group is not collecting contributions")
	ErrAlreadyJoined     = errors.New("payer already holds a paid membership")
	ErrInvalidAmountType = errors.New("payment type is not supported")
)

// Service prepares payment intents and answers status queries. Reconciliation
// itself lives in the Reconciler; the service never applies business effects.
type Service struct {
	payments   Store
	groups     GroupGetter
	members    Members
	requests   JoinRequests
	reconciler *Reconciler
}

// NewService creates a new payment service
func NewService(payments Store, groups GroupGetter, members Members, requests JoinRequests, reconciler *Reconciler) *Service {
	return &Service{
		payments:   payments,
		groups:     groups,
		members:    members,
		requests:   requests,
		reconciler: reconciler,
	}
}

// Intent is what the client needs to open a gateway checkout.
type Intent struct {
	Reference string            `json:"reference"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata"`
}

// Initialize validates the requested payment against current group state and
// stores a pending intent under a fresh reference. Validation here is a
// courtesy: the reconciler re-checks everything against the state at apply
// time, so a stale intent can never buy its way into a group.
func (s *Service) Initialize(ctx context.Context, userID, groupID int64, paymentType Type, preferredSlot *int) (*Intent, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}

	var amount int64
	switch paymentType {
	case TypeGroupCreation:
		if g.CreatorID != userID {
			return nil, ErrNotGroupCreator
		}
		if g.Status != group.StatusForming {
			return nil, ErrGroupNotForming
		}
		if err := s.requireNotJoined(ctx, groupID, userID); err != nil {
			return nil, err
		}
		amount = g.JoinCost()

	case TypeGroupJoin:
		if g.Status != group.StatusForming {
			return nil, ErrGroupNotForming
		}
		if err := s.requireNotJoined(ctx, groupID, userID); err != nil {
			return nil, err
		}
		jr, err := s.requests.GetApproved(ctx, groupID, userID)
		if err != nil {
			return nil, err
		}
		if jr == nil {
			return nil, ErrNoApprovedRequest
		}
		amount = g.JoinCost()

	case TypeContribution:
		if g.Status != group.StatusActive {
			return nil, ErrGroupNotActive
		}
		m, err := s.members.Get(ctx, groupID, userID)
		if err != nil {
			return nil, err
		}
		if m == nil || m.Status != membership.StatusActive {
			return nil, ErrNotAMember
		}
		amount = g.ContributionAmount

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentType, paymentType)
	}

	reference := uuid.NewString()

	p, err := s.payments.Create(ctx, &Payment{
		Reference:     reference,
		UserID:        userID,
		GroupID:       groupID,
		Type:          paymentType,
		Amount:        amount,
		Currency:      "NGN",
		PreferredSlot: preferredSlot,
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"payment_type": string(paymentType),
		"group_id":     fmt.Sprint(groupID),
		"user_id":      fmt.Sprint(userID),
	}
	if preferredSlot != nil {
		metadata["preferred_slot"] = fmt.Sprint(*preferredSlot)
	}

	return &Intent{
		Reference: p.Reference,
		Amount:    amount,
		Currency:  "NGN",
		Metadata:  metadata,
	}, nil
}

// Reconcile delegates to the single reconciliation entry point.
func (s *Service) Reconcile(ctx context.Context, reference string) (*Result, error) {
	return s.reconciler.Reconcile(ctx, reference)
}

// GetByReference returns the stored payment state for a reference the caller
// owns.
func (s *Service) GetByReference(ctx context.Context, userID int64, reference string) (*Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, ErrUnknownReference
	}
	return p, nil
}

func (s *Service) requireNotJoined(ctx context.Context, groupID, userID int64) error {
	m, err := s.members.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if m != nil && m.HasPaidDeposit {
		return ErrAlreadyJoined
	}
	return nil
}
