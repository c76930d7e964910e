package joinrequest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Ensure Repository implements Store
var _ Store = (*Repository)(nil)

// Repository handles join request data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new join request repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const joinRequestColumns = `id, group_id, user_id, preferred_slot, status, expires_at, created_at, updated_at`

func scanJoinRequest(row interface{ Scan(...interface{}) error }) (*JoinRequest, error) {
	jr := &JoinRequest{}
	err := row.Scan(
		&jr.ID,
		&jr.GroupID,
		&jr.UserID,
		&jr.PreferredSlot,
		&jr.Status,
		&jr.ExpiresAt,
		&jr.CreatedAt,
		&jr.UpdatedAt,
	)
	return jr, err
}

// Create inserts a pending request. The partial unique index on open
// requests rejects a second pending or approved request for the same
// (group, user) pair.
func (r *Repository) Create(ctx context.Context, jr *JoinRequest) (*JoinRequest, error) {
	query := `
		INSERT INTO join_requests (group_id, user_id, preferred_slot, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + joinRequestColumns

	created, err := scanJoinRequest(r.db.QueryRowContext(ctx, query,
		jr.GroupID, jr.UserID, jr.PreferredSlot, jr.ExpiresAt))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrOpenRequestExists
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	return created, nil
}

// GetByID retrieves a join request by ID; nil if not found
func (r *Repository) GetByID(ctx context.Context, id int64) (*JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`

	jr, err := scanJoinRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}

	return jr, nil
}

// GetApproved retrieves the user's approved request for a group; nil if none
func (r *Repository) GetApproved(ctx context.Context, groupID, userID int64) (*JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE group_id = $1 AND user_id = $2 AND status = 'approved'
	`

	jr, err := scanJoinRequest(r.db.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get approved join request: %w", err)
	}

	return jr, nil
}

// ListByGroup retrieves all join requests for a group, newest first
func (r *Repository) ListByGroup(ctx context.Context, groupID int64) ([]*JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE group_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []*JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, jr)
	}

	return requests, rows.Err()
}

// UpdateStatus moves a request between states only if it is still in the
// expected one
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	query := `UPDATE join_requests SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update join request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ListExpiredOpen retrieves open requests whose deadline has passed
func (r *Repository) ListExpiredOpen(ctx context.Context, now time.Time) ([]*JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE status IN ('pending', 'approved') AND expires_at < $1
		ORDER BY expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired join requests: %w", err)
	}
	defer rows.Close()

	var requests []*JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, jr)
	}

	return requests, rows.Err()
}
