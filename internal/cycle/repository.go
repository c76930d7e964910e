package cycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Ensure Repository implements Store
var _ Store = (*Repository)(nil)

// Repository handles cycle, contribution and payout persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new cycle repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateCycles inserts cycles 1..total in pending state, skipping any that
// already exist (safe on group-activation replays).
func (r *Repository) CreateCycles(ctx context.Context, groupID int64, total int) error {
	query := `
		INSERT INTO cycles (group_id, cycle_number)
		SELECT $1, generate_series(1, $2)
		ON CONFLICT (group_id, cycle_number) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, total); err != nil {
		return fmt.Errorf("failed to create cycles: %w", err)
	}
	return nil
}

// GetCycle retrieves a cycle; nil if it does not exist
func (r *Repository) GetCycle(ctx context.Context, groupID int64, number int) (*Cycle, error) {
	query := `SELECT id, group_id, cycle_number, status, completed_at FROM cycles WHERE group_id = $1 AND cycle_number = $2`

	c := &Cycle{}
	err := r.db.QueryRowContext(ctx, query, groupID, number).Scan(&c.ID, &c.GroupID, &c.Number, &c.Status, &c.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}

	return c, nil
}

// ListCycles retrieves all cycles for a group in rotation order
func (r *Repository) ListCycles(ctx context.Context, groupID int64) ([]*Cycle, error) {
	query := `SELECT id, group_id, cycle_number, status, completed_at FROM cycles WHERE group_id = $1 ORDER BY cycle_number`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	return scanCycles(rows)
}

// ListActiveCycles retrieves all active cycles across groups (sweeper input)
func (r *Repository) ListActiveCycles(ctx context.Context) ([]*Cycle, error) {
	query := `SELECT id, group_id, cycle_number, status, completed_at FROM cycles WHERE status = 'active'`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active cycles: %w", err)
	}
	defer rows.Close()

	return scanCycles(rows)
}

func scanCycles(rows *sql.Rows) ([]*Cycle, error) {
	var cycles []*Cycle
	for rows.Next() {
		c := &Cycle{}
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Number, &c.Status, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}
	return cycles, nil
}

// ActivateCycle transitions a cycle from pending to active
func (r *Repository) ActivateCycle(ctx context.Context, groupID int64, number int) (bool, error) {
	query := `UPDATE cycles SET status = 'active' WHERE group_id = $1 AND cycle_number = $2 AND status = 'pending'`
	return r.conditional(ctx, query, groupID, number)
}

// CompleteCycle transitions a cycle from active to completed
func (r *Repository) CompleteCycle(ctx context.Context, groupID int64, number int) (bool, error) {
	query := `UPDATE cycles SET status = 'completed', completed_at = now() WHERE group_id = $1 AND cycle_number = $2 AND status = 'active'`
	return r.conditional(ctx, query, groupID, number)
}

func (r *Repository) conditional(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update cycle: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// EnsurePending seeds a pending contribution if none exists yet
func (r *Repository) EnsurePending(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64) error {
	query := `
		INSERT INTO contributions (group_id, user_id, cycle_number, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id, cycle_number) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID, cycleNumber, amount); err != nil {
		return fmt.Errorf("failed to seed contribution: %w", err)
	}
	return nil
}

// MarkPaid upserts the contribution to paid. The WHERE guard on the upsert
// makes an already-paid row untouchable, so the bool return distinguishes a
// first application from a replay.
func (r *Repository) MarkPaid(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64, reference string) (bool, error) {
	query := `
		INSERT INTO contributions (group_id, user_id, cycle_number, amount, status, payment_reference, paid_date)
		VALUES ($1, $2, $3, $4, 'paid', $5, now())
		ON CONFLICT (group_id, user_id, cycle_number) DO UPDATE
		SET status = 'paid', amount = EXCLUDED.amount, payment_reference = EXCLUDED.payment_reference, paid_date = now()
		WHERE contributions.status <> 'paid'
	`

	result, err := r.db.ExecContext(ctx, query, groupID, userID, cycleNumber, amount, reference)
	if err != nil {
		return false, fmt.Errorf("failed to mark contribution paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// CountPaid counts paid contributions for a cycle
func (r *Repository) CountPaid(ctx context.Context, groupID int64, cycleNumber int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM contributions WHERE group_id = $1 AND cycle_number = $2 AND status = 'paid'`
	if err := r.db.QueryRowContext(ctx, query, groupID, cycleNumber).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count paid contributions: %w", err)
	}
	return count, nil
}

// SumPaid totals paid contributions for a cycle
func (r *Repository) SumPaid(ctx context.Context, groupID int64, cycleNumber int) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_id = $1 AND cycle_number = $2 AND status = 'paid'`
	if err := r.db.QueryRowContext(ctx, query, groupID, cycleNumber).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum paid contributions: %w", err)
	}
	return sum, nil
}

// ListContributions retrieves all contributions for a cycle
func (r *Repository) ListContributions(ctx context.Context, groupID int64, cycleNumber int) ([]*Contribution, error) {
	query := `
		SELECT id, group_id, user_id, cycle_number, amount, status, payment_reference, paid_date, created_at
		FROM contributions
		WHERE group_id = $1 AND cycle_number = $2
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, cycleNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*Contribution
	for rows.Next() {
		c := &Contribution{}
		if err := rows.Scan(
			&c.ID,
			&c.GroupID,
			&c.UserID,
			&c.CycleNumber,
			&c.Amount,
			&c.Status,
			&c.PaymentReference,
			&c.PaidDate,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}

	return contributions, nil
}

// CreatePayout records the payout for a completed cycle. A duplicate
// (group, cycle) insert returns the existing payout with ErrPayoutExists.
func (r *Repository) CreatePayout(ctx context.Context, p *Payout) (*Payout, error) {
	query := `
		INSERT INTO payouts (group_id, cycle_number, user_id, amount, service_fee, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, group_id, cycle_number, user_id, amount, service_fee, reference, status, transfer_code, created_at
	`

	created := &Payout{}
	err := r.db.QueryRowContext(ctx, query, p.GroupID, p.CycleNumber, p.UserID, p.Amount, p.ServiceFee, p.Reference).Scan(
		&created.ID,
		&created.GroupID,
		&created.CycleNumber,
		&created.UserID,
		&created.Amount,
		&created.ServiceFee,
		&created.Reference,
		&created.Status,
		&created.TransferCode,
		&created.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			existing, getErr := r.GetPayout(ctx, p.GroupID, p.CycleNumber)
			if getErr != nil {
				return nil, getErr
			}
			return existing, ErrPayoutExists
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	return created, nil
}

// GetPayout retrieves the payout for a cycle; nil if none exists
func (r *Repository) GetPayout(ctx context.Context, groupID int64, cycleNumber int) (*Payout, error) {
	query := `
		SELECT id, group_id, cycle_number, user_id, amount, service_fee, reference, status, transfer_code, created_at
		FROM payouts
		WHERE group_id = $1 AND cycle_number = $2
	`

	p := &Payout{}
	err := r.db.QueryRowContext(ctx, query, groupID, cycleNumber).Scan(
		&p.ID,
		&p.GroupID,
		&p.CycleNumber,
		&p.UserID,
		&p.Amount,
		&p.ServiceFee,
		&p.Reference,
		&p.Status,
		&p.TransferCode,
		&p.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	return p, nil
}

// ListPayouts retrieves all payouts for a group
func (r *Repository) ListPayouts(ctx context.Context, groupID int64) ([]*Payout, error) {
	query := `
		SELECT id, group_id, cycle_number, user_id, amount, service_fee, reference, status, transfer_code, created_at
		FROM payouts
		WHERE group_id = $1
		ORDER BY cycle_number
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*Payout
	for rows.Next() {
		p := &Payout{}
		if err := rows.Scan(
			&p.ID,
			&p.GroupID,
			&p.CycleNumber,
			&p.UserID,
			&p.Amount,
			&p.ServiceFee,
			&p.Reference,
			&p.Status,
			&p.TransferCode,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}

	return payouts, nil
}

// MarkPayoutTransferred records a successful transfer initiation
func (r *Repository) MarkPayoutTransferred(ctx context.Context, reference, transferCode string) error {
	query := `UPDATE payouts SET status = 'transferred', transfer_code = $2 WHERE reference = $1 AND status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, reference, transferCode); err != nil {
		return fmt.Errorf("failed to mark payout transferred: %w", err)
	}
	return nil
}
