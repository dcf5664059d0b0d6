package token

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/idqr/qrgate/internal/clock"
	"github.com/idqr/qrgate/internal/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(s, clk, "/dashboard", slog.Default())
}

func TestCreateToken(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "owner-1", "/dashboard/business")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tok.ID == "" {
		t.Errorf("expected generated token ID")
	}
	if tok.Target != "/dashboard/business" {
		t.Errorf("expected target preserved, got %q", tok.Target)
	}

	got, err := r.Get(ctx, tok.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OwnerID != "owner-1" {
		t.Errorf("expected owner 'owner-1', got %q", got.OwnerID)
	}
}

func TestCreateTokenTargetPolicy(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	valid := []string{
		"/dashboard",
		"/dashboard/business",
		"/dashboard/business/reports",
	}
	for _, target := range valid {
		if _, err := r.Create(ctx, "o", target); err != nil {
			t.Errorf("expected %q accepted, got %v", target, err)
		}
	}

	invalid := []string{
		"",
		"dashboard/business",
		"https://evil.example/phish",
		"//evil.example/phish",
		"/dashboard/../etc/passwd",
		"/dashboardx",
		"/other/page",
		"/",
	}
	for _, target := range invalid {
		if _, err := r.Create(ctx, "o", target); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("expected ErrInvalidTarget for %q, got %v", target, err)
		}
	}
}

func TestGetTokenNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListVisibility(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Create(ctx, "alice", "/dashboard/a"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.Create(ctx, "bob", "/dashboard/b"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	all, err := r.List(ctx, "alice", true)
	if err != nil {
		t.Fatalf("List as admin failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected admin to see 2 tokens, got %d", len(all))
	}

	mine, err := r.List(ctx, "alice", false)
	if err != nil {
		t.Fatalf("List as owner failed: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("expected owner to see 1 token, got %d", len(mine))
	}
}

func TestDeleteAuthorization(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "alice", "/dashboard/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.Delete(ctx, tok.ID, "bob", false); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-owner, got %v", err)
	}

	if err := r.Delete(ctx, tok.ID, "alice", false); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}

	if err := r.Delete(ctx, tok.ID, "alice", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteAsAdmin(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "alice", "/dashboard/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.Delete(ctx, tok.ID, "someone-else", true); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}

// Ownerless tokens can only be deleted by an admin.
func TestDeleteOwnerlessToken(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "", "/dashboard/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.Delete(ctx, tok.ID, "alice", false); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := r.Delete(ctx, tok.ID, "alice", true); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}

func TestResolveIncrements(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "alice", "/dashboard/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		got, err := r.Resolve(ctx, tok.ID, "203.0.113.1")
		if err != nil {
			t.Fatalf("Resolve %d failed: %v", i, err)
		}
		if got.ScanCount != int64(i) {
			t.Errorf("expected scan count %d, got %d", i, got.ScanCount)
		}
		if got.Target != "/dashboard/a" {
			t.Errorf("expected target '/dashboard/a', got %q", got.Target)
		}
	}
}

func TestResolveAfterDelete(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	tok, err := r.Create(ctx, "alice", "/dashboard/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Delete(ctx, tok.ID, "alice", false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := r.Resolve(ctx, tok.ID, "203.0.113.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
