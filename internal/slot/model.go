package slot

import (
	"context"
	"errors"
	"time"
)

// Status represents the state of a rotation slot
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusAssigned  Status = "assigned"
)

// Slot represents one rotation position in a group. Slot number k collects
// the payout in cycle k; the mapping is fixed for the life of the group.
type Slot struct {
	ID         int64      `json:"id"`
	GroupID    int64      `json:"group_id"`
	Number     int        `json:"slot_number"`
	Status     Status     `json:"status"`
	ReservedBy *int64     `json:"reserved_by,omitempty"`
	AssignedTo *int64     `json:"assigned_to,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

// Common errors
var (
	ErrAlreadyInitialized = errors.New("slots already initialized for this group")
	ErrSlotNotFound       = errors.New("slot not found")
	ErrSlotUnavailable    = errors.New("slot is not available")
	ErrSlotConflict       = errors.New("slot is held by another member")
	ErrNoSlotsAvailable   = errors.New("no slots available")
)

// Ledger is the slot allocation contract. Every mutation is a conditional
// transition: it succeeds only if the slot is currently in the expected state,
// so concurrent callers racing for the same (group, slot) serialize on the
// row and exactly one wins.
type Ledger interface {
	// Initialize creates slots 1..totalSlots in available state. Calling it
	// again with the same total is a no-op; a mismatched re-initialization
	// fails with ErrAlreadyInitialized.
	Initialize(ctx context.Context, groupID int64, totalSlots int) error

	// Get returns a single slot, or ErrSlotNotFound.
	Get(ctx context.Context, groupID int64, number int) (*Slot, error)

	// List returns all slots for a group ordered by slot number.
	List(ctx context.Context, groupID int64) ([]*Slot, error)

	// Reserve transitions available -> reserved for userID. Fails with
	// ErrSlotUnavailable if the slot is not currently available.
	Reserve(ctx context.Context, groupID int64, number int, userID int64) error

	// Release transitions reserved -> available if holderID still holds the
	// reservation. Releasing an already-available or since-assigned slot is
	// a no-op.
	Release(ctx context.Context, groupID int64, number int, holderID int64) error

	// Assign transitions available -> assigned, or reserved(userID) ->
	// assigned. Assigning a slot already assigned to userID is a no-op.
	// Fails with ErrSlotConflict when another member holds the slot.
	Assign(ctx context.Context, groupID int64, number int, userID int64) error

	// NextAvailable returns the lowest-numbered available slot, or
	// ErrNoSlotsAvailable.
	NextAvailable(ctx context.Context, groupID int64) (int, error)
}
