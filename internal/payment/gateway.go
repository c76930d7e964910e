package payment

import (
	"context"
	"strconv"
)

// Transaction is the gateway's authoritative view of a payment. The core
// never trusts client-supplied amounts or statuses; this is the only input
// that counts.
type Transaction struct {
	Reference string
	// Status is "success", "failed" or "pending" after normalization.
	Status   string
	Amount   int64
	Currency string
	Channel  string
	// Metadata echoes the intent metadata attached at initialization
	// (payment_type, group_id, user_id, preferred_slot).
	Metadata map[string]string
}

const (
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
	TxStatusPending = "pending"
)

// Gateway is the narrow payment-provider contract consumed by the core.
type Gateway interface {
	// Verify fetches the authoritative transaction state for a reference.
	// The call is network-bound and must be time-bounded by the
	// implementation.
	Verify(ctx context.Context, reference string) (*Transaction, error)

	// InitiateTransfer disburses a payout. Idempotent by reference: the
	// provider deduplicates retries carrying the same reference.
	InitiateTransfer(ctx context.Context, recipient string, amount int64, reference string) (transferCode string, err error)
}

// TransferAdapter lets the cycle engine disburse payouts through the
// gateway. Mapping a user to their settlement account is the KYC provider's
// job; until that lookup is wired the user ID is forwarded as the recipient
// handle the provider was registered with.
type TransferAdapter struct {
	gateway Gateway
}

// NewTransferAdapter creates a transfer adapter over the gateway
func NewTransferAdapter(gateway Gateway) *TransferAdapter {
	return &TransferAdapter{gateway: gateway}
}

// InitiateTransfer implements the cycle engine's transfer contract
func (a *TransferAdapter) InitiateTransfer(ctx context.Context, recipientUserID, amount int64, reference string) (string, error) {
	return a.gateway.InitiateTransfer(ctx, strconv.FormatInt(recipientUserID, 10), amount, reference)
}
