package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	ddlStatements := []string{
		// qr_tokens table: mintable scan tokens and their usage telemetry
		`CREATE TABLE IF NOT EXISTS qr_tokens (
			id TEXT PRIMARY KEY,
			owner_id TEXT,
			target TEXT NOT NULL,
			scan_count INTEGER NOT NULL DEFAULT 0,
			last_scan_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Index on owner_id for owner-scoped listings
		`CREATE INDEX IF NOT EXISTS idx_qr_tokens_owner ON qr_tokens(owner_id)`,

		// accounts table: identities with role and punitive state
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			frozen_until TIMESTAMP,
			known_ip TEXT NOT NULL DEFAULT '',
			code_hash TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// blocked_ips table: IP-level blocks, keyed by IP not identity
		`CREATE TABLE IF NOT EXISTS blocked_ips (
			ip TEXT PRIMARY KEY,
			reason TEXT NOT NULL,
			expires_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
