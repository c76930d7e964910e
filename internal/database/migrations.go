package database

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
//
// The unique indexes here are load-bearing: (group_id, slot_number),
// (group_id, user_id) and (group_id, user_id, cycle_number) uniqueness back
// the conditional-update logic in the slot, membership and cycle packages.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		creator_id BIGINT NOT NULL,
		contribution_amount BIGINT NOT NULL CHECK (contribution_amount > 0),
		deposit_amount BIGINT NOT NULL DEFAULT 0 CHECK (deposit_amount >= 0),
		total_slots INT NOT NULL CHECK (total_slots >= 2),
		frequency TEXT NOT NULL,
		current_cycle INT NOT NULL DEFAULT 1 CHECK (current_cycle >= 1),
		status TEXT NOT NULL DEFAULT 'forming',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS slots (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		slot_number INT NOT NULL,
		status TEXT NOT NULL DEFAULT 'available',
		reserved_by BIGINT,
		assigned_to BIGINT,
		reserved_at TIMESTAMPTZ,
		assigned_at TIMESTAMPTZ,
		CHECK (reserved_by IS NULL OR assigned_to IS NULL),
		UNIQUE (group_id, slot_number)
	)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		position INT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		is_creator BOOLEAN NOT NULL DEFAULT false,
		has_paid_deposit BOOLEAN NOT NULL DEFAULT false,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (group_id, user_id),
		UNIQUE (group_id, position)
	)`,

	`CREATE TABLE IF NOT EXISTS join_requests (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		preferred_slot INT,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// One open (pending or approved) request per user per group.
	`CREATE UNIQUE INDEX IF NOT EXISTS join_requests_open_uniq
		ON join_requests (group_id, user_id)
		WHERE status IN ('pending', 'approved')`,

	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		user_id BIGINT NOT NULL,
		group_id BIGINT NOT NULL,
		payment_type TEXT NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'NGN',
		preferred_slot INT,
		status TEXT NOT NULL DEFAULT 'pending',
		verified BOOLEAN NOT NULL DEFAULT false,
		applied BOOLEAN NOT NULL DEFAULT false,
		position INT,
		apply_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS contributions (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		cycle_number INT NOT NULL,
		amount BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_reference TEXT,
		paid_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (group_id, user_id, cycle_number)
	)`,

	`CREATE TABLE IF NOT EXISTS cycles (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		cycle_number INT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		completed_at TIMESTAMPTZ,
		UNIQUE (group_id, cycle_number)
	)`,

	`CREATE TABLE IF NOT EXISTS payouts (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		cycle_number INT NOT NULL,
		user_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		service_fee BIGINT NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		transfer_code TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (group_id, cycle_number)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		recipient_id BIGINT NOT NULL,
		group_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// RunMigrations applies the schema migrations in order.
func RunMigrations(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
