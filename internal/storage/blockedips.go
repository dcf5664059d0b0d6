package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertBlockedIP creates or replaces an IP block. Re-blocking an already
// blocked IP updates the reason and expiry.
func (s *SQLiteStorage) UpsertBlockedIP(ctx context.Context, b *BlockedIP) error {
	var expiresAt any
	if b.ExpiresAt != nil {
		expiresAt = *b.ExpiresAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocked_ips (ip, reason, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET reason = excluded.reason, expires_at = excluded.expires_at`,
		b.IP, b.Reason, expiresAt, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert blocked IP: %w", err)
	}

	return nil
}

// GetBlockedIP retrieves a block record by IP.
// Returns ErrNotFound if the IP is not blocked.
func (s *SQLiteStorage) GetBlockedIP(ctx context.Context, ip string) (*BlockedIP, error) {
	var b BlockedIP
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		"SELECT ip, reason, expires_at, created_at FROM blocked_ips WHERE ip = ?",
		ip).
		Scan(&b.IP, &b.Reason, &expiresAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blocked IP: %w", err)
	}

	if expiresAt.Valid {
		ts := expiresAt.Time
		b.ExpiresAt = &ts
	}

	return &b, nil
}

// DeleteBlockedIP removes a block record.
// Returns ErrNotFound if the IP is not blocked. The lazy expiry path
// ignores ErrNotFound so that two readers racing to clear the same expired
// block both succeed.
func (s *SQLiteStorage) DeleteBlockedIP(ctx context.Context, ip string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM blocked_ips WHERE ip = ?", ip)
	if err != nil {
		return fmt.Errorf("failed to delete blocked IP: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
