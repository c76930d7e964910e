package membership

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Ensure Repository implements Store
var _ Store = (*Repository)(nil)

// Repository handles membership data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new membership repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, group_id, user_id, position, status, is_creator, has_paid_deposit, joined_at`

func scanMember(row interface{ Scan(...interface{}) error }) (*Membership, error) {
	m := &Membership{}
	err := row.Scan(
		&m.ID,
		&m.GroupID,
		&m.UserID,
		&m.Position,
		&m.Status,
		&m.IsCreator,
		&m.HasPaidDeposit,
		&m.JoinedAt,
	)
	return m, err
}

// Insert creates a membership row. The (group_id, user_id) and
// (group_id, position) unique constraints are the final arbiter under
// concurrency: a duplicate user maps to ErrAlreadyMember, a duplicate
// position to ErrPositionTaken.
func (r *Repository) Insert(ctx context.Context, m *Membership) (*Membership, error) {
	query := `
		INSERT INTO memberships (group_id, user_id, position, is_creator)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + memberColumns

	created, err := scanMember(r.db.QueryRowContext(ctx, query, m.GroupID, m.UserID, m.Position, m.IsCreator))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "memberships_group_id_position_key" {
				return nil, ErrPositionTaken
			}
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	return created, nil
}

// Get retrieves a membership by (group, user); nil if none exists
func (r *Repository) Get(ctx context.Context, groupID, userID int64) (*Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM memberships WHERE group_id = $1 AND user_id = $2`

	m, err := scanMember(r.db.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// GetByPosition retrieves the member holding a rotation position; nil if the
// position is unfilled
func (r *Repository) GetByPosition(ctx context.Context, groupID int64, position int) (*Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM memberships WHERE group_id = $1 AND position = $2`

	m, err := scanMember(r.db.QueryRowContext(ctx, query, groupID, position))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership by position: %w", err)
	}

	return m, nil
}

// ListActive retrieves all active members of a group in rotation order
func (r *Repository) ListActive(ctx context.Context, groupID int64) ([]*Membership, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM memberships
		WHERE group_id = $1 AND status = 'active'
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return members, nil
}

// CountActive derives the active-member count live from membership rows
func (r *Repository) CountActive(ctx context.Context, groupID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memberships WHERE group_id = $1 AND status = 'active'`
	if err := r.db.QueryRowContext(ctx, query, groupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return count, nil
}

// MarkDepositPaid flags the deposit as paid. Setting an already-true flag is
// a no-op success.
func (r *Repository) MarkDepositPaid(ctx context.Context, groupID, userID int64) error {
	query := `UPDATE memberships SET has_paid_deposit = true WHERE group_id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark deposit paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}
