package cycle

import (
	"context"
	"errors"
	"time"
)

// CycleStatus represents the state of a contribution cycle
type CycleStatus string

const (
	CycleStatusPending   CycleStatus = "pending"
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
)

// ContributionStatus represents the state of a member's contribution
type ContributionStatus string

const (
	ContributionStatusPending ContributionStatus = "pending"
	ContributionStatusPaid    ContributionStatus = "paid"
	ContributionStatusOverdue ContributionStatus = "overdue"
)

// PayoutStatus represents the state of a cycle payout
type PayoutStatus string

const (
	PayoutStatusPending     PayoutStatus = "pending"
	PayoutStatusTransferred PayoutStatus = "transferred"
)

// Cycle is one contribution-and-payout round. The member at rotation
// position k collects in cycle k.
type Cycle struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"group_id"`
	Number      int         `json:"cycle_number"`
	Status      CycleStatus `json:"status"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Contribution is one member's payment for one cycle. At most one paid row
// may exist per (group, user, cycle); the unique constraint enforces it.
type Contribution struct {
	ID               int64              `json:"id"`
	GroupID          int64              `json:"group_id"`
	UserID           int64              `json:"user_id"`
	CycleNumber      int                `json:"cycle_number"`
	Amount           int64              `json:"amount"`
	Status           ContributionStatus `json:"status"`
	PaymentReference *string            `json:"payment_reference,omitempty"`
	PaidDate         *time.Time         `json:"paid_date,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Payout is the pooled sum (minus service fee) owed to a cycle's collector.
type Payout struct {
	ID           int64        `json:"id"`
	GroupID      int64        `json:"group_id"`
	CycleNumber  int          `json:"cycle_number"`
	UserID       int64        `json:"user_id"`
	Amount       int64        `json:"amount"`
	ServiceFee   int64        `json:"service_fee"`
	Reference    string       `json:"reference"`
	Status       PayoutStatus `json:"status"`
	TransferCode *string      `json:"transfer_code,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Common errors
var (
	ErrCycleNotFound = errors.New("cycle not found")
	ErrPayoutExists  = errors.New("payout already exists for this cycle")
	ErrNoCollector   = errors.New("no member holds the collecting position")
)

// Store is the persistence contract for cycles, contributions and payouts.
// Cycle transitions are conditional updates so exactly one caller closes a
// cycle; everything else is recomputable from contribution rows.
type Store interface {
	CreateCycles(ctx context.Context, groupID int64, total int) error
	GetCycle(ctx context.Context, groupID int64, number int) (*Cycle, error)
	ListCycles(ctx context.Context, groupID int64) ([]*Cycle, error)
	ListActiveCycles(ctx context.Context) ([]*Cycle, error)

	// ActivateCycle transitions pending -> active; returns false if the
	// cycle does not exist or is not pending.
	ActivateCycle(ctx context.Context, groupID int64, number int) (bool, error)
	// CompleteCycle transitions active -> completed; exactly one concurrent
	// caller gets true.
	CompleteCycle(ctx context.Context, groupID int64, number int) (bool, error)

	EnsurePending(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64) error
	// MarkPaid upserts the contribution to paid. Returns false when the
	// contribution was already paid (idempotent replay).
	MarkPaid(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64, reference string) (bool, error)
	CountPaid(ctx context.Context, groupID int64, cycleNumber int) (int, error)
	SumPaid(ctx context.Context, groupID int64, cycleNumber int) (int64, error)
	ListContributions(ctx context.Context, groupID int64, cycleNumber int) ([]*Contribution, error)

	CreatePayout(ctx context.Context, p *Payout) (*Payout, error)
	GetPayout(ctx context.Context, groupID int64, cycleNumber int) (*Payout, error)
	ListPayouts(ctx context.Context, groupID int64) ([]*Payout, error)
	MarkPayoutTransferred(ctx context.Context, reference, transferCode string) error
}
