package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Ensure Repository implements Store
var _ Store = (*Repository)(nil)

// Repository handles payment data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new payment repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const paymentColumns = `id, reference, user_id, group_id, payment_type, amount, currency, preferred_slot, status, verified, applied, position, apply_error, created_at, updated_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (*Payment, error) {
	p := &Payment{}
	err := row.Scan(
		&p.ID,
		&p.Reference,
		&p.UserID,
		&p.GroupID,
		&p.Type,
		&p.Amount,
		&p.Currency,
		&p.PreferredSlot,
		&p.Status,
		&p.Verified,
		&p.Applied,
		&p.Position,
		&p.ApplyError,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// Create inserts a pending payment intent. A duplicate reference returns the
// existing row, so racing intent writers converge on one record.
func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	query := `
		INSERT INTO payments (reference, user_id, group_id, payment_type, amount, currency, preferred_slot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + paymentColumns

	created, err := scanPayment(r.db.QueryRowContext(ctx, query,
		p.Reference, p.UserID, p.GroupID, p.Type, p.Amount, p.Currency, p.PreferredSlot))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return r.GetByReference(ctx, p.Reference)
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return created, nil
}

// GetByReference retrieves a payment by its idempotency key; nil if unseen
func (r *Repository) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// MarkVerified records the gateway-confirmed amount and flips verified
func (r *Repository) MarkVerified(ctx context.Context, reference string, amount int64, currency string) error {
	query := `
		UPDATE payments
		SET verified = true, status = 'success', amount = $2, currency = $3, updated_at = now()
		WHERE reference = $1
	`
	if _, err := r.db.ExecContext(ctx, query, reference, amount, currency); err != nil {
		return fmt.Errorf("failed to mark payment verified: %w", err)
	}
	return nil
}

// MarkFailed records a terminal gateway failure
func (r *Repository) MarkFailed(ctx context.Context, reference string) error {
	query := `UPDATE payments SET status = 'failed', updated_at = now() WHERE reference = $1 AND status <> 'success'`
	if _, err := r.db.ExecContext(ctx, query, reference); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return nil
}

// MarkApplied flips applied exactly once and clears any previous gap flag
func (r *Repository) MarkApplied(ctx context.Context, reference string, position *int) (bool, error) {
	query := `
		UPDATE payments
		SET applied = true, position = $2, apply_error = NULL, updated_at = now()
		WHERE reference = $1 AND applied = false
	`

	result, err := r.db.ExecContext(ctx, query, reference, position)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment applied: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// RecordApplyError flags a verified-but-unapplied payment for operator
// follow-up
func (r *Repository) RecordApplyError(ctx context.Context, reference, message string) error {
	query := `UPDATE payments SET apply_error = $2, updated_at = now() WHERE reference = $1`
	if _, err := r.db.ExecContext(ctx, query, reference, message); err != nil {
		return fmt.Errorf("failed to record apply error: %w", err)
	}
	return nil
}
