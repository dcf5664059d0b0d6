package storage

import "time"

// Account roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account statuses.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// QRToken represents a mintable scan token bound to one target path.
type QRToken struct {
	ID         string
	OwnerID    string // empty for legacy/anonymous creation
	Target     string
	ScanCount  int64
	LastScanAt *time.Time
	CreatedAt  time.Time
}

// Account represents a registered identity with its punitive state.
// Status and FrozenUntil are separate punitive tracks and are never set
// together: blocking clears a freeze, freezing clears a block.
type Account struct {
	ID          string
	Role        string // RoleAdmin or RoleUser
	Status      string // StatusActive or StatusBlocked
	FrozenUntil *time.Time
	KnownIP     string // last observed IP, informational only
	CodeHash    string // bcrypt hash of the access code
	CreatedAt   time.Time
}

// BlockedIP represents an IP-level block, independent of any account.
type BlockedIP struct {
	IP        string
	Reason    string
	ExpiresAt *time.Time // nil = permanent
	CreatedAt time.Time
}
