// Package identity manages accounts, their punitive state, and IP blocks.
// All lazy expiry clearing lives in the read path here so every caller
// gets the same idempotent semantics.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/idqr/qrgate/internal/clock"
	"github.com/idqr/qrgate/internal/storage"
)

// Errors returned by identity operations.
var (
	// ErrNotFound indicates the account or IP record doesn't exist.
	ErrNotFound = errors.New("identity: not found")

	// ErrInvalidCode indicates no account matches the presented access code.
	ErrInvalidCode = errors.New("identity: invalid access code")
)

// AccountState is the outcome of a punitive-state check.
type AccountState int

const (
	// StateActive means the account may proceed.
	StateActive AccountState = iota
	// StateBlocked means the account is blocked until explicitly cleared.
	StateBlocked
	// StateFrozen means the account is temporarily denied.
	StateFrozen
)

// AccountCheck is the result of CheckAccount. Role rides along so callers
// deciding on the admin role need no second account read.
// FrozenUntil is set only when State is StateFrozen.
type AccountCheck struct {
	State       AccountState
	Role        string // storage.RoleAdmin or storage.RoleUser
	FrozenUntil time.Time
}

// IPCheck is the result of CheckIP.
// Reason is set only when Blocked is true.
type IPCheck struct {
	Blocked bool
	Reason  string
}

// Store is the storage surface the manager needs.
type Store interface {
	CreateAccount(ctx context.Context, a *storage.Account) error
	GetAccount(ctx context.Context, id string) (*storage.Account, error)
	ListAccounts(ctx context.Context) ([]*storage.Account, error)
	CountAdminAccounts(ctx context.Context) (int, error)
	BlockAccount(ctx context.Context, id string) error
	UnblockAccount(ctx context.Context, id string) error
	FreezeAccount(ctx context.Context, id string, until time.Time) error
	UnfreezeAccount(ctx context.Context, id string) error
	UpdateKnownIP(ctx context.Context, id string, ip string) error
	UpsertBlockedIP(ctx context.Context, b *storage.BlockedIP) error
	GetBlockedIP(ctx context.Context, ip string) (*storage.BlockedIP, error)
	DeleteBlockedIP(ctx context.Context, ip string) error
}

// Manager is the identity and punitive state manager.
type Manager struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, clk clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, clock: clk, logger: logger}
}

// CheckIP reports whether an IP is blocked. An expired block is cleared on
// read and reported as not blocked; the request that observes the expiry is
// evaluated as clear regardless of whether the delete has completed.
func (m *Manager) CheckIP(ctx context.Context, ip string) (IPCheck, error) {
	b, err := m.store.GetBlockedIP(ctx, ip)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return IPCheck{}, nil
		}
		return IPCheck{}, fmt.Errorf("check ip: %w", err)
	}

	if b.ExpiresAt != nil && !m.clock.Now().Before(*b.ExpiresAt) {
		// Two concurrent readers may both see the expired record; the
		// second delete finds nothing and that is fine.
		if err := m.store.DeleteBlockedIP(ctx, ip); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return IPCheck{}, fmt.Errorf("clear expired ip block: %w", err)
		}
		return IPCheck{}, nil
	}

	return IPCheck{Blocked: true, Reason: b.Reason}, nil
}

// CheckAccount reports the punitive state of an account. A freeze whose
// deadline has passed is cleared on read and reported as active.
func (m *Manager) CheckAccount(ctx context.Context, id string) (AccountCheck, error) {
	a, err := m.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return AccountCheck{}, ErrNotFound
		}
		return AccountCheck{}, fmt.Errorf("check account: %w", err)
	}

	if a.Status == storage.StatusBlocked {
		return AccountCheck{State: StateBlocked, Role: a.Role}, nil
	}

	if a.FrozenUntil != nil {
		if m.clock.Now().Before(*a.FrozenUntil) {
			return AccountCheck{State: StateFrozen, Role: a.Role, FrozenUntil: *a.FrozenUntil}, nil
		}
		// Expired freeze: lazily clear. Concurrent readers may both
		// issue this write; the second is a no-op.
		if err := m.store.UnfreezeAccount(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return AccountCheck{}, fmt.Errorf("clear expired freeze: %w", err)
		}
	}

	return AccountCheck{State: StateActive, Role: a.Role}, nil
}

// Authenticate finds the account matching an access code. Codes are bcrypt
// hashed, so every account must be compared; there is no hash lookup.
// On success the caller's IP is recorded as the account's known IP.
func (m *Manager) Authenticate(ctx context.Context, code, ip string) (*storage.Account, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}

	accounts, err := m.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	for _, a := range accounts {
		if bcrypt.CompareHashAndPassword([]byte(a.CodeHash), []byte(code)) == nil {
			if ip != "" {
				if err := m.store.UpdateKnownIP(ctx, a.ID, ip); err != nil {
					// Informational field only; login still succeeds.
					m.logger.Warn("failed to record known IP", "account_id", a.ID, "error", err)
				}
			}
			return a, nil
		}
	}

	return nil, ErrInvalidCode
}

// CreateAccount creates an account with a freshly generated access code.
// The plaintext code is returned exactly once; only its hash is stored.
func (m *Manager) CreateAccount(ctx context.Context, role string) (*storage.Account, string, error) {
	if role != storage.RoleAdmin && role != storage.RoleUser {
		return nil, "", fmt.Errorf("create account: unknown role %q", role)
	}

	code, err := generateAccessCode()
	if err != nil {
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	a := &storage.Account{
		ID:        uuid.NewString(),
		Role:      role,
		Status:    storage.StatusActive,
		CodeHash:  string(hash),
		CreatedAt: m.clock.Now().UTC(),
	}

	if err := m.store.CreateAccount(ctx, a); err != nil {
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	m.logger.Info("account created", "account_id", a.ID, "role", role)
	return a, code, nil
}

// Bootstrap ensures at least one admin account exists, creating one from
// the configured access code if the database has none.
func (m *Manager) Bootstrap(ctx context.Context, adminCode string) error {
	count, err := m.store.CountAdminAccounts(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminCode), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	a := &storage.Account{
		ID:        uuid.NewString(),
		Role:      storage.RoleAdmin,
		Status:    storage.StatusActive,
		CodeHash:  string(hash),
		CreatedAt: m.clock.Now().UTC(),
	}

	if err := m.store.CreateAccount(ctx, a); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	m.logger.Info("bootstrap admin account created", "account_id", a.ID)
	return nil
}

// Block marks an account blocked, clearing any freeze.
func (m *Manager) Block(ctx context.Context, id string) error {
	if err := m.store.BlockAccount(ctx, id); err != nil {
		return mapAccountErr(err)
	}
	m.logger.Info("account blocked", "account_id", id)
	return nil
}

// Unblock returns a blocked account to active.
func (m *Manager) Unblock(ctx context.Context, id string) error {
	if err := m.store.UnblockAccount(ctx, id); err != nil {
		return mapAccountErr(err)
	}
	m.logger.Info("account unblocked", "account_id", id)
	return nil
}

// Freeze temporarily denies an account for the given duration, clearing
// any block.
func (m *Manager) Freeze(ctx context.Context, id string, d time.Duration) error {
	until := m.clock.Now().Add(d).UTC()
	if err := m.store.FreezeAccount(ctx, id, until); err != nil {
		return mapAccountErr(err)
	}
	m.logger.Info("account frozen", "account_id", id, "until", until)
	return nil
}

// Unfreeze clears a freeze ahead of its deadline.
func (m *Manager) Unfreeze(ctx context.Context, id string) error {
	if err := m.store.UnfreezeAccount(ctx, id); err != nil {
		return mapAccountErr(err)
	}
	m.logger.Info("account unfrozen", "account_id", id)
	return nil
}

// BlockIP blocks an IP for the given duration; d <= 0 means permanent.
func (m *Manager) BlockIP(ctx context.Context, ip, reason string, d time.Duration) error {
	b := &storage.BlockedIP{
		IP:        ip,
		Reason:    reason,
		CreatedAt: m.clock.Now().UTC(),
	}
	if d > 0 {
		until := m.clock.Now().Add(d).UTC()
		b.ExpiresAt = &until
	}

	if err := m.store.UpsertBlockedIP(ctx, b); err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	m.logger.Info("ip blocked", "ip", ip, "reason", reason, "permanent", b.ExpiresAt == nil)
	return nil
}

// UnblockIP removes an IP block.
func (m *Manager) UnblockIP(ctx context.Context, ip string) error {
	if err := m.store.DeleteBlockedIP(ctx, ip); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("unblock ip: %w", err)
	}
	m.logger.Info("ip unblocked", "ip", ip)
	return nil
}

// Get retrieves an account by ID.
func (m *Manager) Get(ctx context.Context, id string) (*storage.Account, error) {
	a, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return nil, mapAccountErr(err)
	}
	return a, nil
}

func mapAccountErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// generateAccessCode generates a random access code as a hex string.
func generateAccessCode() (string, error) {
	// 16 random bytes (128 bits) is plenty for a one-time displayed code
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
