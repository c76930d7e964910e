package group

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles group data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new group repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const groupColumns = `id, name, creator_id, contribution_amount, deposit_amount, total_slots, frequency, current_cycle, status, created_at`

func scanGroup(row interface{ Scan(...interface{}) error }) (*Group, error) {
	g := &Group{}
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.CreatorID,
		&g.ContributionAmount,
		&g.DepositAmount,
		&g.TotalSlots,
		&g.Frequency,
		&g.CurrentCycle,
		&g.Status,
		&g.CreatedAt,
	)
	return g, err
}

// Create inserts a new group into the database
func (r *Repository) Create(ctx context.Context, req *CreateGroupRequest, creatorID int64) (*Group, error) {
	query := `
		INSERT INTO groups (name, creator_id, contribution_amount, deposit_amount, total_slots, frequency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + groupColumns

	g, err := scanGroup(r.db.QueryRowContext(ctx, query,
		req.Name, creatorID, req.ContributionAmount, req.DepositAmount, req.TotalSlots, req.Frequency))
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return g, nil
}

// GetByID retrieves a group by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return g, nil
}

// ListByUserID retrieves all groups the user is a member of
func (r *Repository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(DISTINCT g.id)
		FROM groups g
		JOIN memberships m ON g.id = m.group_id
		WHERE m.user_id = $1 AND m.status = 'active'
	`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := `
		SELECT g.id, g.name, g.creator_id, g.contribution_amount, g.deposit_amount,
		       g.total_slots, g.frequency, g.current_cycle, g.status, g.created_at
		FROM groups g
		JOIN memberships m ON g.id = m.group_id
		WHERE m.user_id = $1 AND m.status = 'active'
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, total, nil
}

// SetStatus transitions the group status conditionally. Returns true if this
// caller performed the transition, false if the group was not in `from`.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	query := `UPDATE groups SET status = $3 WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to set group status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// AdvanceCycle moves current_cycle from `from` to `from + 1`. The condition
// keeps the counter monotonic even if two cycle completions race.
func (r *Repository) AdvanceCycle(ctx context.Context, id int64, from int) (bool, error) {
	query := `UPDATE groups SET current_cycle = current_cycle + 1 WHERE id = $1 AND current_cycle = $2`

	result, err := r.db.ExecContext(ctx, query, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to advance cycle: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
