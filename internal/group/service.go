package group

import (
	"context"
	"errors"

	"github.com/tobiloba/ajopool/internal/slot"
)

// Common errors
var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrInvalidName     = errors.New("group name is required")
	ErrInvalidAmount   = errors.New("contribution amount must be positive")
	ErrInvalidSlots    = errors.New("total slots must be between 2 and 100")
	ErrInvalidFreq     = errors.New("frequency must be daily, weekly or monthly")
	ErrNotCreator      = errors.New("only the group creator may perform this action")
	ErrGroupNotForming = errors.New("group is no longer forming")
)

// MemberLister supplies the group roster. Implemented by the membership
// service.
type MemberLister interface {
	ListGroupMembers(ctx context.Context, groupID int64) ([]*Member, error)
}

// Service handles group business logic
type Service struct {
	repo    *Repository
	slots   slot.Ledger
	members MemberLister
}

// NewService creates a new group service
func NewService(repo *Repository, slots slot.Ledger, members MemberLister) *Service {
	return &Service{repo: repo, slots: slots, members: members}
}

// Create creates a new group in forming state and initializes its slot
// ledger. The creator is NOT added as a member here; membership is granted
// only once their payment is reconciled.
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	if req.Name == "" {
		return nil, ErrInvalidName
	}
	if req.ContributionAmount <= 0 || req.DepositAmount < 0 {
		return nil, ErrInvalidAmount
	}
	if req.TotalSlots < 2 || req.TotalSlots > 100 {
		return nil, ErrInvalidSlots
	}
	switch req.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return nil, ErrInvalidFreq
	}

	g, err := s.repo.Create(ctx, req, creatorID)
	if err != nil {
		return nil, err
	}

	if err := s.slots.Initialize(ctx, g.ID, g.TotalSlots); err != nil {
		return nil, err
	}

	return g, nil
}

// GetByID retrieves a group by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Group, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// GetByIDWithMembers retrieves a group with its roster
func (s *Service) GetByIDWithMembers(ctx context.Context, id int64) (*Group, []*Member, error) {
	g, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.members.ListGroupMembers(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return g, members, nil
}

// ListByUserID retrieves all groups the user belongs to
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, userID, perPage, offset)
}

// ListSlots returns the group's slot ledger in rotation order
func (s *Service) ListSlots(ctx context.Context, groupID int64) ([]*slot.Slot, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.slots.List(ctx, groupID)
}

// Cancel abandons a forming group. Only the creator may cancel, and only
// before activation.
func (s *Service) Cancel(ctx context.Context, groupID, userID int64) error {
	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != userID {
		return ErrNotCreator
	}

	ok, err := s.repo.SetStatus(ctx, groupID, StatusForming, StatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrGroupNotForming
	}
	return nil
}
