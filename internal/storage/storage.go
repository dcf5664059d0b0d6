// Package storage provides types and interfaces for SQLite persistence operations.
package storage

import (
	"context"
	"time"
)

// Storage defines the interface for SQLite persistence operations.
type Storage interface {
	// Token operations
	CreateQRToken(ctx context.Context, t *QRToken) error
	GetQRToken(ctx context.Context, id string) (*QRToken, error)
	ListQRTokens(ctx context.Context) ([]*QRToken, error)
	ListQRTokensByOwner(ctx context.Context, ownerID string) ([]*QRToken, error)
	DeleteQRToken(ctx context.Context, id string) error
	ResolveQRToken(ctx context.Context, id string, now time.Time) (*QRToken, error)

	// Account operations
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	CountAdminAccounts(ctx context.Context) (int, error)
	BlockAccount(ctx context.Context, id string) error
	UnblockAccount(ctx context.Context, id string) error
	FreezeAccount(ctx context.Context, id string, until time.Time) error
	UnfreezeAccount(ctx context.Context, id string) error
	UpdateKnownIP(ctx context.Context, id string, ip string) error

	// Blocked IP operations
	UpsertBlockedIP(ctx context.Context, b *BlockedIP) error
	GetBlockedIP(ctx context.Context, ip string) (*BlockedIP, error)
	DeleteBlockedIP(ctx context.Context, ip string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
