package payment

import (
	"context"
	"errors"
	"time"
)

// Type is the closed set of payment intents. Each variant has exactly one
// applier in the reconciler; an unknown value is an error, never a fallthrough.
type Type string

const (
	// TypeGroupCreation is the creator's entry payment: deposit plus first
	// contribution, with an explicit slot choice.
	TypeGroupCreation Type = "group_creation"
	// TypeGroupJoin is an approved joiner's entry payment.
	TypeGroupJoin Type = "group_join"
	// TypeContribution is a member's payment for the current cycle.
	TypeContribution Type = "contribution"
)

// Status represents the gateway-reported state of a payment
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Payment is the single source of truth for whether an external transaction
// has been fully applied. Reference is the idempotency key. Verified means
// the gateway confirmed success; Applied means the business effects ran.
// Verified && !Applied is a reconciliation gap an operator must see.
type Payment struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	UserID        int64     `json:"user_id"`
	GroupID       int64     `json:"group_id"`
	Type          Type      `json:"payment_type"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PreferredSlot *int      `json:"preferred_slot,omitempty"`
	Status        Status    `json:"status"`
	Verified      bool      `json:"verified"`
	Applied       bool      `json:"applied"`
	Position      *int      `json:"position,omitempty"`
	ApplyError    *string   `json:"apply_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Common errors. Busy, gateway and pending errors are retryable; the rest
// are terminal for the given reference.
var (
	ErrInvalidReference     = errors.New("payment reference is required")
	ErrUnknownReference     = errors.New("unknown payment reference")
	ErrBusy                 = errors.New("payment is being processed, retry shortly")
	ErrGatewayVerification  = errors.New("gateway verification failed")
	ErrPaymentPending       = errors.New("gateway still reports the payment as pending")
	ErrPaymentNotSuccessful = errors.New("gateway reports the payment as not successful")
	ErrInsufficientAmount   = errors.New("paid amount is below the required total")
	ErrUnknownPaymentType   = errors.New("unknown payment type")
	ErrNotGroupCreator      = errors.New("payer is not the group creator")
	ErrNoApprovedRequest    = errors.New("no approved join request for this payer")
	ErrNotAMember           = errors.New("payer is not an active member of the group")
)

// Store is the persistence contract for payments. The reference's unique
// index backs idempotency; rows are mutated only inside the reconciler's
// locked section.
type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	MarkVerified(ctx context.Context, reference string, amount int64, currency string) error
	MarkFailed(ctx context.Context, reference string) error
	// MarkApplied flips applied exactly once; returns false on a replay.
	MarkApplied(ctx context.Context, reference string, position *int) (bool, error)
	RecordApplyError(ctx context.Context, reference, message string) error
}

// Result is what both the synchronous caller and the webhook path get back
// from reconciliation; identical replays must produce identical results.
type Result struct {
	Reference string `json:"reference"`
	Success   bool   `json:"success"`
	Verified  bool   `json:"verified"`
	Applied   bool   `json:"applied"`
	Position  *int   `json:"position,omitempty"`
	Message   string `json:"message"`
}
