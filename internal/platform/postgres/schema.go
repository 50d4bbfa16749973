package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the schema if it does not exist. Statements are idempotent
// so restarts are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		ref_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		phone_normalized TEXT NOT NULL DEFAULT '',
		reference_description TEXT NOT NULL DEFAULT '',
		suspended BOOLEAN NOT NULL DEFAULT FALSE,
		deletion_requested_at TIMESTAMPTZ,
		deletion_scheduled_for TIMESTAMPTZ,
		reset_otp TEXT,
		reset_otp_expires TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_phone_normalized ON users (phone_normalized)`,

	`CREATE TABLE IF NOT EXISTS data_records (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		owner_ref_id TEXT NOT NULL DEFAULT '',
		owner_uuid TEXT NOT NULL DEFAULT '',
		owner_name TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT '',
		owner_phone TEXT NOT NULL DEFAULT '',
		owner_reference_description TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'General',
		tags JSONB NOT NULL DEFAULT '[]',
		kind TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		file_ref TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		file_mime TEXT NOT NULL DEFAULT '',
		reference_hint TEXT NOT NULL DEFAULT '',
		owner_identifier TEXT NOT NULL DEFAULT '',
		allow_download BOOLEAN NOT NULL DEFAULT FALSE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_data_records_owner ON data_records (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_data_records_category ON data_records (category)`,

	`CREATE TABLE IF NOT EXISTS consents (
		id UUID PRIMARY KEY,
		data_id UUID NOT NULL,
		requester_id UUID NOT NULL,
		owner_id UUID NOT NULL,
		status TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ,
		approved_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	// One live request per (data, requester). Rejected/revoked rows fall out
	// of the index so a fresh request is always possible after a terminal
	// transition.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_consents_one_active
		ON consents (data_id, requester_id)
		WHERE status IN ('pending', 'approved')`,
	`CREATE INDEX IF NOT EXISTS idx_consents_requester ON consents (requester_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consents_owner ON consents (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consents_data ON consents (data_id)`,

	`CREATE TABLE IF NOT EXISTS reports (
		id UUID PRIMARY KEY,
		reporter_id UUID NOT NULL,
		reported_id UUID NOT NULL,
		category TEXT NOT NULL,
		reason TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		review_note TEXT NOT NULL DEFAULT '',
		reviewer_id UUID,
		reviewed_at TIMESTAMPTZ,
		suspension_applied BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		status_code INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events (action)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id)`,
}
