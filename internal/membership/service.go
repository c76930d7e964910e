package membership

import (
	"context"
	"errors"

	"github.com/tobiloba/ajopool/internal/group"
)

// GroupGetter supplies group limits for capacity checks. Implemented by the
// group repository.
type GroupGetter interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
}

// ContributionSeeder creates the pending contribution row for a new member's
// first cycle. Implemented by the cycle repository.
type ContributionSeeder interface {
	EnsurePending(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64) error
}

// Service handles membership business logic
type Service struct {
	store    Store
	groups   GroupGetter
	contribs ContributionSeeder
}

// NewService creates a new membership service
func NewService(store Store, groups GroupGetter, contribs ContributionSeeder) *Service {
	return &Service{store: store, groups: groups, contribs: contribs}
}

// Add activates a membership at the given rotation position and seeds the
// member's first pending contribution. Called only from payment
// reconciliation, so a replay must be a no-op: if the (group, user) pair
// already exists the existing record is returned with created=false.
func (s *Service) Add(ctx context.Context, groupID, userID int64, position int, isCreator bool) (*Membership, bool, error) {
	existing, err := s.store.Get(ctx, groupID, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if g == nil {
		return nil, false, ErrGroupNotFound
	}

	count, err := s.store.CountActive(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if count >= g.TotalSlots {
		return nil, false, ErrGroupFull
	}

	m, err := s.store.Insert(ctx, &Membership{
		GroupID:   groupID,
		UserID:    userID,
		Position:  position,
		IsCreator: isCreator,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			// Lost a race against another reconciliation attempt for the
			// same user; treat it as the retry it is.
			existing, getErr := s.store.Get(ctx, groupID, userID)
			if getErr != nil {
				return nil, false, getErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	if err := s.contribs.EnsurePending(ctx, groupID, userID, g.CurrentCycle, g.ContributionAmount); err != nil {
		return nil, false, err
	}

	return m, true, nil
}

// MarkDepositPaid flags the member's security deposit as paid (idempotent)
func (s *Service) MarkDepositPaid(ctx context.Context, groupID, userID int64) error {
	return s.store.MarkDepositPaid(ctx, groupID, userID)
}

// Get retrieves a membership; nil if the user is not a member
func (s *Service) Get(ctx context.Context, groupID, userID int64) (*Membership, error) {
	return s.store.Get(ctx, groupID, userID)
}

// GetByPosition retrieves the member holding a rotation position
func (s *Service) GetByPosition(ctx context.Context, groupID int64, position int) (*Membership, error) {
	return s.store.GetByPosition(ctx, groupID, position)
}

// CountActive returns the number of active members, derived live
func (s *Service) CountActive(ctx context.Context, groupID int64) (int, error) {
	return s.store.CountActive(ctx, groupID)
}

// ListActive returns all active members in rotation order
func (s *Service) ListActive(ctx context.Context, groupID int64) ([]*Membership, error) {
	return s.store.ListActive(ctx, groupID)
}

// ListGroupMembers implements the group roster view
func (s *Service) ListGroupMembers(ctx context.Context, groupID int64) ([]*group.Member, error) {
	members, err := s.store.ListActive(ctx, groupID)
	if err != nil {
		return nil, err
	}

	views := make([]*group.Member, len(members))
	for i, m := range members {
		views[i] = &group.Member{
			UserID:         m.UserID,
			Position:       m.Position,
			Status:         string(m.Status),
			IsCreator:      m.IsCreator,
			HasPaidDeposit: m.HasPaidDeposit,
			JoinedAt:       m.JoinedAt,
		}
	}
	return views, nil
}
