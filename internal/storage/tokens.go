package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// isConstraintErr reports whether err is a SQLite constraint violation.
// The extended error code for UNIQUE constraint is 2067; the base
// constraint error code is 19.
func isConstraintErr(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == 2067 || (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// CreateQRToken persists a new token with scan_count=0.
// Returns ErrDuplicate if a token with this ID already exists.
func (s *SQLiteStorage) CreateQRToken(ctx context.Context, t *QRToken) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO qr_tokens (id, owner_id, target, created_at) VALUES (?, NULLIF(?, ''), ?, ?)",
		t.ID, t.OwnerID, t.Target, t.CreatedAt)

	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// GetQRToken retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) GetQRToken(ctx context.Context, id string) (*QRToken, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, target, scan_count, last_scan_at, created_at FROM qr_tokens WHERE id = ?",
		id)

	t, err := scanQRToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return t, nil
}

// ListQRTokens returns all tokens, newest first (for the admin dashboard).
// Returns an empty slice if no tokens exist.
func (s *SQLiteStorage) ListQRTokens(ctx context.Context) ([]*QRToken, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, target, scan_count, last_scan_at, created_at FROM qr_tokens ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectQRTokens(rows)
}

// ListQRTokensByOwner returns the tokens created by one owner, newest first.
func (s *SQLiteStorage) ListQRTokensByOwner(ctx context.Context, ownerID string) ([]*QRToken, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, target, scan_count, last_scan_at, created_at FROM qr_tokens WHERE owner_id = ? ORDER BY created_at DESC, id DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectQRTokens(rows)
}

// DeleteQRToken deletes a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) DeleteQRToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM qr_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
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

// ResolveQRToken increments the scan counter, stamps last_scan_at, and
// returns the updated token in one statement. The UPDATE ... RETURNING
// form makes increment-and-read atomic: concurrent resolves never lose an
// increment, and a resolve racing a delete sees ErrNotFound, never a
// partial read.
func (s *SQLiteStorage) ResolveQRToken(ctx context.Context, id string, now time.Time) (*QRToken, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE qr_tokens SET scan_count = scan_count + 1, last_scan_at = ?
		 WHERE id = ?
		 RETURNING id, owner_id, target, scan_count, last_scan_at, created_at`,
		now, id)

	t, err := scanQRToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	return t, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQRToken(row rowScanner) (*QRToken, error) {
	var t QRToken
	var ownerID sql.NullString
	var lastScanAt sql.NullTime

	err := row.Scan(&t.ID, &ownerID, &t.Target, &t.ScanCount, &lastScanAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		t.OwnerID = ownerID.String
	}
	if lastScanAt.Valid {
		ts := lastScanAt.Time
		t.LastScanAt = &ts
	}

	return &t, nil
}

func collectQRTokens(rows *sql.Rows) ([]*QRToken, error) {
	var tokens []*QRToken

	for rows.Next() {
		t, err := scanQRToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	// Return empty slice instead of nil
	if tokens == nil {
		tokens = make([]*QRToken, 0)
	}

	return tokens, nil
}
