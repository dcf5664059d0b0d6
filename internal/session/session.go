// Package session provides per-caller session state: an optional identity
// reference and the single scan grant. The Store interface is the contract;
// the shipped implementation is an in-memory TTL map.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/idqr/qrgate/internal/clock"
)

// Grant is a session-scoped, single-target authorization produced by a
// scan. A session holds at most one; a new grant replaces the old one.
type Grant struct {
	Scope     string
	GrantedAt time.Time
}

// State is the per-session key-value state carried across requests.
type State struct {
	IdentityID string // empty for anonymous scan-holders
	Grant      *Grant
}

// clone returns a deep copy so callers never share memory with the store.
func (s *State) clone() *State {
	c := &State{IdentityID: s.IdentityID}
	if s.Grant != nil {
		g := *s.Grant
		c.Grant = &g
	}
	return c
}

// Store holds session state across requests. Get hands out a copy of the
// state; mutations take effect only through Put.
type Store interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, id string) (*State, bool)
	Put(ctx context.Context, id string, state *State)
	Delete(ctx context.Context, id string)
}

type entry struct {
	state     *State
	expiresAt time.Time
}

// MemoryStore is an in-memory Store with fixed-lifetime sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	timeout  time.Duration
	clock    clock.Clock
}

// NewMemoryStore creates a session store. A zero timeout defaults to 24h.
func NewMemoryStore(timeout time.Duration, clk clock.Clock) *MemoryStore {
	if timeout == 0 {
		timeout = 24 * time.Hour
	}
	return &MemoryStore{
		sessions: make(map[string]*entry),
		timeout:  timeout,
		clock:    clk,
	}
}

// Create generates a new empty session and returns its ID.
func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	// 32 random bytes = 64 hex chars
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)

	s.mu.Lock()
	s.sessions[id] = &entry{
		state:     &State{},
		expiresAt: s.clock.Now().Add(s.timeout),
	}
	s.mu.Unlock()

	return id, nil
}

// Get retrieves a copy of the session state by ID. Expired sessions read
// as absent. The copy keeps concurrent requests on the same cookie from
// sharing entry memory with a racing Put.
func (s *MemoryStore) Get(ctx context.Context, id string) (*State, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	var state *State
	expired := false
	if ok {
		expired = s.clock.Now().After(e.expiresAt)
		if !expired {
			state = e.state.clone()
		}
	}
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if expired {
		s.Delete(ctx, id)
		return nil, false
	}

	return state, true
}

// Put replaces the state of a session with a copy of the given state.
// Writing to an unknown or expired session starts a fresh lifetime; last
// write wins.
func (s *MemoryStore) Put(ctx context.Context, id string, state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.clock.Now().After(e.expiresAt) {
		s.sessions[id] = &entry{
			state:     state.clone(),
			expiresAt: s.clock.Now().Add(s.timeout),
		}
		return
	}
	e.state = state.clone()
}

// Delete removes a session.
func (s *MemoryStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cleanup removes expired sessions (call periodically).
func (s *MemoryStore) Cleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// Manager wraps a Store with the grant issuer and identity binding.
type Manager struct {
	store Store
	clock clock.Clock
}

// NewManager creates a Manager.
func NewManager(store Store, clk clock.Clock) *Manager {
	return &Manager{store: store, clock: clk}
}

// Store returns the underlying session store.
func (m *Manager) Store() Store { return m.store }

// IssueGrant unconditionally overwrites the session's grant with the given
// scope. There is no failure mode beyond context cancellation: a caller who
// reaches this point has already passed the scan resolver. No scope
// merging, no stacking.
func (m *Manager) IssueGrant(ctx context.Context, sessionID, scope string) {
	state, ok := m.store.Get(ctx, sessionID)
	if !ok {
		state = &State{}
	}
	state.Grant = &Grant{Scope: scope, GrantedAt: m.clock.Now()}
	m.store.Put(ctx, sessionID, state)
}

// BindIdentity attaches an authenticated account to the session.
func (m *Manager) BindIdentity(ctx context.Context, sessionID, accountID string) {
	state, ok := m.store.Get(ctx, sessionID)
	if !ok {
		state = &State{}
	}
	state.IdentityID = accountID
	m.store.Put(ctx, sessionID, state)
}

// ClearIdentity detaches the identity, keeping any grant.
func (m *Manager) ClearIdentity(ctx context.Context, sessionID string) {
	state, ok := m.store.Get(ctx, sessionID)
	if !ok {
		return
	}
	state.IdentityID = ""
	m.store.Put(ctx, sessionID, state)
}

// State retrieves the session state, or nil for an unknown session.
func (m *Manager) State(ctx context.Context, sessionID string) *State {
	state, ok := m.store.Get(ctx, sessionID)
	if !ok {
		return nil
	}
	return state
}
