package slot

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Ensure Repository implements Ledger
var _ Ledger = (*Repository)(nil)

// Repository is the PostgreSQL-backed slot ledger. All transitions are
// single-row conditional updates; RowsAffected decides who won a race.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new slot repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Initialize creates slots 1..totalSlots for a group.
func (r *Repository) Initialize(ctx context.Context, groupID int64, totalSlots int) error {
	query := `
		INSERT INTO slots (group_id, slot_number)
		SELECT $1, generate_series(1, $2)
		ON CONFLICT (group_id, slot_number) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, totalSlots); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// A concurrent initializer got there first; fall through to the
			// count check below.
		} else {
			return fmt.Errorf("failed to initialize slots: %w", err)
		}
	}

	var count int
	countQuery := `SELECT COUNT(*) FROM slots WHERE group_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, groupID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count slots: %w", err)
	}
	if count != totalSlots {
		return ErrAlreadyInitialized
	}

	return nil
}

// Get retrieves a single slot
func (r *Repository) Get(ctx context.Context, groupID int64, number int) (*Slot, error) {
	query := `
		SELECT id, group_id, slot_number, status, reserved_by, assigned_to, reserved_at, assigned_at
		FROM slots
		WHERE group_id = $1 AND slot_number = $2
	`

	s := &Slot{}
	err := r.db.QueryRowContext(ctx, query, groupID, number).Scan(
		&s.ID,
		&s.GroupID,
		&s.Number,
		&s.Status,
		&s.ReservedBy,
		&s.AssignedTo,
		&s.ReservedAt,
		&s.AssignedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	return s, nil
}

// List retrieves all slots for a group in rotation order
func (r *Repository) List(ctx context.Context, groupID int64) ([]*Slot, error) {
	query := `
		SELECT id, group_id, slot_number, status, reserved_by, assigned_to, reserved_at, assigned_at
		FROM slots
		WHERE group_id = $1
		ORDER BY slot_number
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []*Slot
	for rows.Next() {
		s := &Slot{}
		if err := rows.Scan(
			&s.ID,
			&s.GroupID,
			&s.Number,
			&s.Status,
			&s.ReservedBy,
			&s.AssignedTo,
			&s.ReservedAt,
			&s.AssignedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}

	return slots, nil
}

// Reserve transitions an available slot to reserved. Only one reserver can
// win; everyone else sees ErrSlotUnavailable.
func (r *Repository) Reserve(ctx context.Context, groupID int64, number int, userID int64) error {
	query := `
		UPDATE slots
		SET status = 'reserved', reserved_by = $3, reserved_at = now()
		WHERE group_id = $1 AND slot_number = $2 AND status = 'available'
	`

	result, err := r.db.ExecContext(ctx, query, groupID, number, userID)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.Get(ctx, groupID, number); err != nil {
			return err
		}
		return ErrSlotUnavailable
	}

	return nil
}

// Release returns a reserved slot to available if holderID still holds it.
func (r *Repository) Release(ctx context.Context, groupID int64, number int, holderID int64) error {
	query := `
		UPDATE slots
		SET status = 'available', reserved_by = NULL, reserved_at = NULL
		WHERE group_id = $1 AND slot_number = $2
		  AND status = 'reserved' AND reserved_by = $3
	`

	if _, err := r.db.ExecContext(ctx, query, groupID, number, holderID); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}

	// Zero rows means the slot is already available, was assigned in the
	// meantime, or is held by someone else. All of those are no-ops here.
	return nil
}

// Assign gives the slot to userID, honoring an existing reservation by the
// same user.
func (r *Repository) Assign(ctx context.Context, groupID int64, number int, userID int64) error {
	query := `
		UPDATE slots
		SET status = 'assigned', assigned_to = $3, reserved_by = NULL, reserved_at = NULL, assigned_at = now()
		WHERE group_id = $1 AND slot_number = $2
		  AND (status = 'available' OR (status = 'reserved' AND reserved_by = $3))
	`

	result, err := r.db.ExecContext(ctx, query, groupID, number, userID)
	if err != nil {
		return fmt.Errorf("failed to assign slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s, err := r.Get(ctx, groupID, number)
		if err != nil {
			return err
		}
		if s.Status == StatusAssigned && s.AssignedTo != nil && *s.AssignedTo == userID {
			// Retried reconciliation; the slot is already ours.
			return nil
		}
		return ErrSlotConflict
	}

	return nil
}

// NextAvailable returns the lowest-numbered available slot
func (r *Repository) NextAvailable(ctx context.Context, groupID int64) (int, error) {
	query := `
		SELECT slot_number FROM slots
		WHERE group_id = $1 AND status = 'available'
		ORDER BY slot_number
		LIMIT 1
	`

	var number int
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(&number)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNoSlotsAvailable
		}
		return 0, fmt.Errorf("failed to pick next available slot: %w", err)
	}

	return number, nil
}
