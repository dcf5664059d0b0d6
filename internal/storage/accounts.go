package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAccount persists a new account.
// Returns ErrDuplicate if the ID or code hash already exists.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, role, status, known_ip, code_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.Role, a.Status, a.KnownIP, a.CodeHash, a.CreatedAt)

	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account by ID.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, role, status, frozen_until, known_ip, code_hash, created_at FROM accounts WHERE id = ?",
		id)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return a, nil
}

// ListAccounts returns all accounts.
// Returns an empty slice if no accounts exist.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, status, frozen_until, known_ip, code_hash, created_at FROM accounts ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var accounts []*Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	if accounts == nil {
		accounts = make([]*Account, 0)
	}

	return accounts, nil
}

// CountAdminAccounts returns the number of admin accounts.
// Used at startup to decide whether the bootstrap admin must be created.
func (s *SQLiteStorage) CountAdminAccounts(ctx context.Context) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE role = ?", RoleAdmin).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin accounts: %w", err)
	}

	return count, nil
}

// BlockAccount marks an account as blocked. Blocking clears any freeze:
// the two punitive tracks are never stacked.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStorage) BlockAccount(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id,
		"UPDATE accounts SET status = ?, frozen_until = NULL WHERE id = ?",
		StatusBlocked, id)
}

// UnblockAccount clears a block, returning the account to active.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStorage) UnblockAccount(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id,
		"UPDATE accounts SET status = ? WHERE id = ?",
		StatusActive, id)
}

// FreezeAccount sets a temporary freeze until the given time. Freezing
// clears any block.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStorage) FreezeAccount(ctx context.Context, id string, until time.Time) error {
	return s.updateAccount(ctx, id,
		"UPDATE accounts SET status = ?, frozen_until = ? WHERE id = ?",
		StatusActive, until, id)
}

// UnfreezeAccount clears the freeze timestamp. The write is idempotent:
// clearing an already-clear freeze succeeds, which is what the lazy expiry
// path relies on when two readers race to clear the same expired freeze.
// Returns ErrNotFound only if the account doesn't exist.
func (s *SQLiteStorage) UnfreezeAccount(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id,
		"UPDATE accounts SET frozen_until = NULL WHERE id = ?",
		id)
}

// UpdateKnownIP records the last observed IP for an account.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStorage) UpdateKnownIP(ctx context.Context, id string, ip string) error {
	return s.updateAccount(ctx, id,
		"UPDATE accounts SET known_ip = ? WHERE id = ?",
		ip, id)
}

// updateAccount executes an account UPDATE and maps "no rows matched" to
// ErrNotFound.
func (s *SQLiteStorage) updateAccount(ctx context.Context, id string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", id, err)
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

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var frozenUntil sql.NullTime

	err := row.Scan(&a.ID, &a.Role, &a.Status, &frozenUntil, &a.KnownIP, &a.CodeHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if frozenUntil.Valid {
		ts := frozenUntil.Time
		a.FrozenUntil = &ts
	}

	return &a, nil
}
