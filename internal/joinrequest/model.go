package joinrequest

import (
	"context"
	"errors"
	"time"
)

// Status walks pending -> approved -> completed, with rejected and expired
// as terminal exits. An open request (pending or approved) blocks a second
// request from the same user for the same group.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// JoinRequest is a prospective member's application to a forming group.
// A preferred slot, when stated, is held as a reservation on the slot ledger
// for the life of the request.
type JoinRequest struct {
	ID            int64     `json:"id"`
	GroupID       int64     `json:"group_id"`
	UserID        int64     `json:"user_id"`
	PreferredSlot *int      `json:"preferred_slot,omitempty"`
	Status        Status    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Common errors
var (
	ErrRequestNotFound   = errors.New("join request not found")
	ErrOpenRequestExists = errors.New("an open join request already exists for this group")
	ErrNotPending        = errors.New("join request is not pending")
	ErrGroupNotFound     = errors.New("group not found")
	ErrGroupNotForming   = errors.New("group is not accepting join requests")
	ErrGroupFull         = errors.New("group has no remaining slots")
	ErrAlreadyMember     = errors.New("user is already a member of this group")
	ErrCreatorJoin       = errors.New("the creator enters through the creation payment, not a join request")
	ErrNotGroupCreator   = errors.New("only the group creator can decide join requests")
)

// Store is the persistence contract for join requests. Status moves run as
// conditional updates so racing deciders cannot double-apply.
type Store interface {
	Create(ctx context.Context, jr *JoinRequest) (*JoinRequest, error)
	GetByID(ctx context.Context, id int64) (*JoinRequest, error)
	GetApproved(ctx context.Context, groupID, userID int64) (*JoinRequest, error)
	ListByGroup(ctx context.Context, groupID int64) ([]*JoinRequest, error)
	// UpdateStatus moves id from -> to; false means the request was no
	// longer in the expected state.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	// ListExpiredOpen returns pending and approved requests whose deadline
	// has passed.
	ListExpiredOpen(ctx context.Context, now time.Time) ([]*JoinRequest, error)
}
