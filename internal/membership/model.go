package membership

import (
	"context"
	"errors"
	"time"
)

// Status represents the state of a membership
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusLeft      Status = "left"
)

// Membership binds a user to exactly one rotation position in a group.
// Position mirrors the assigned slot number; the two must never disagree.
type Membership struct {
	ID             int64     `json:"id"`
	GroupID        int64     `json:"group_id"`
	UserID         int64     `json:"user_id"`
	Position       int       `json:"position"`
	Status         Status    `json:"status"`
	IsCreator      bool      `json:"is_creator"`
	HasPaidDeposit bool      `json:"has_paid_deposit"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Common errors
var (
	ErrAlreadyMember  = errors.New("user is already a member of this group")
	ErrGroupFull      = errors.New("group has no remaining slots")
	ErrMemberNotFound = errors.New("member not found")
	ErrPositionTaken  = errors.New("position is already held by another member")
	ErrGroupNotFound  = errors.New("group not found")
)

// Store is the persistence contract for memberships. The active-member count
// is always derived from the rows themselves; there is no cached counter to
// drift.
type Store interface {
	Insert(ctx context.Context, m *Membership) (*Membership, error)
	Get(ctx context.Context, groupID, userID int64) (*Membership, error)
	GetByPosition(ctx context.Context, groupID int64, position int) (*Membership, error)
	ListActive(ctx context.Context, groupID int64) ([]*Membership, error)
	CountActive(ctx context.Context, groupID int64) (int, error)
	MarkDepositPaid(ctx context.Context, groupID, userID int64) error
}
