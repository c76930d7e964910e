package payment

// InitializePaymentRequest starts a checkout for one of the three payment
// types. Amounts are never client-supplied; the server derives them from the
// group's terms.
type InitializePaymentRequest struct {
	GroupID       int64  `json:"group_id" example:"1"`
	PaymentType   string `json:"payment_type" example:"group_creation"`
	PreferredSlot *int   `json:"preferred_slot,omitempty" example:"3"`
}

// ReconcileRequest asks the server to confirm a payment by reference.
type ReconcileRequest struct {
	Reference string `json:"reference" example:"c9a2f6d0-7a31-4a7e-9a01-2f6f1d5a8b44"`
}

// webhookEvent is the subset of the gateway's webhook payload the handler
// reads. Only the reference is used; everything else is re-fetched from the
// gateway during reconciliation.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// PaymentStatusResponse is the client-facing view of a stored payment.
type PaymentStatusResponse struct {
	Reference  string  `json:"reference"`
	GroupID    int64   `json:"group_id"`
	Type       Type    `json:"payment_type"`
	Amount     int64   `json:"amount"`
	Currency   string  `json:"currency"`
	Status     Status  `json:"status"`
	Verified   bool    `json:"verified"`
	Applied    bool    `json:"applied"`
	Position   *int    `json:"position,omitempty"`
	ApplyError *string `json:"apply_error,omitempty"`
}

// ToStatusResponse converts a payment to its client-facing view
func (p *Payment) ToStatusResponse() PaymentStatusResponse {
	return PaymentStatusResponse{
		Reference:  p.Reference,
		GroupID:    p.GroupID,
		Type:       p.Type,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     p.Status,
		Verified:   p.Verified,
		Applied:    p.Applied,
		Position:   p.Position,
		ApplyError: p.ApplyError,
	}
}
