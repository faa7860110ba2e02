package token

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

func TestIssueThenVerifyUntilExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	a := NewAuthority(NewMemoryRepository(), clock, 0)

	tok, err := a.Issue(ctx, "AB12CD", "P1", models.RoleContestant)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !tok.ExpiresAt.After(tok.CreatedAt) {
		t.Fatalf("expiry %v not after creation %v", tok.ExpiresAt, tok.CreatedAt)
	}
	if tok.ExpiresAt.Sub(tok.CreatedAt) != DefaultTTL {
		t.Fatalf("unexpected ttl %v", tok.ExpiresAt.Sub(tok.CreatedAt))
	}

	got, err := a.Verify(ctx, tok.Token)
	if err != nil {
		t.Fatalf("Verify right after issue: %v", err)
	}
	if got.SessionID != "AB12CD" || got.Name != "P1" || got.Role != models.RoleContestant {
		t.Fatalf("Verify returned %+v", got)
	}

	clock.Advance(DefaultTTL - time.Second)
	if _, err := a.Verify(ctx, tok.Token); err != nil {
		t.Fatalf("Verify before expiry: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := a.Verify(ctx, tok.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyUnknownAndInvalidated(t *testing.T) {
	ctx := context.Background()
	a := NewAuthority(NewMemoryRepository(), clockwork.NewFakeClock(), time.Hour)

	if _, err := a.Verify(ctx, "nope"); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected ErrTokenUnknown, got %v", err)
	}
	if _, err := a.Verify(ctx, ""); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected ErrTokenUnknown for empty token, got %v", err)
	}

	tok, err := a.Issue(ctx, "AB12CD", "host", models.RoleHost)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := a.Invalidate(ctx, tok.Token); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := a.Verify(ctx, tok.Token); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("invalidated token still verifies: %v", err)
	}
}

func TestIssueRequiresFullBinding(t *testing.T) {
	a := NewAuthority(NewMemoryRepository(), clockwork.NewFakeClock(), time.Hour)
	cases := []struct {
		session, name string
		role          models.Role
	}{
		{"", "P1", models.RoleContestant},
		{"AB12CD", "", models.RoleContestant},
		{"AB12CD", "P1", "spectator"},
	}
	for _, c := range cases {
		if _, err := a.Issue(context.Background(), c.session, c.name, c.role); !errors.Is(err, ErrInvalidBinding) {
			t.Fatalf("Issue(%q, %q, %q) = %v, want ErrInvalidBinding", c.session, c.name, c.role, err)
		}
	}
}

func TestTokensAreUnique(t *testing.T) {
	a := NewAuthority(NewMemoryRepository(), clockwork.NewFakeClock(), time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := a.Issue(context.Background(), "AB12CD", "P1", models.RoleContestant)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[tok.Token] {
			t.Fatalf("duplicate token %s", tok.Token)
		}
		seen[tok.Token] = true
	}
}

func TestSQLRepositoryPurge(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Options{
		Driver:     sqlutil.SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "tokens.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	// sub-millisecond start so the issued binding must match what the table keeps
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 20, 0, 0, 123456789, time.UTC))
	a := NewAuthority(NewSQLRepository(db), clock, time.Hour)

	old, err := a.Issue(ctx, "AB12CD", "P1", models.RoleContestant)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(30 * time.Minute)
	fresh, err := a.Issue(ctx, "AB12CD", "display", models.RoleDisplay)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := a.Verify(ctx, fresh.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Role != models.RoleDisplay || !got.ExpiresAt.Equal(fresh.ExpiresAt) || !got.CreatedAt.Equal(fresh.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, fresh)
	}

	clock.Advance(45 * time.Minute)
	n, err := a.Purge(ctx, clock.Now())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d tokens, want 1", n)
	}
	if _, err := a.Verify(ctx, old.Token); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("purged token: %v", err)
	}
	if _, err := a.Verify(ctx, fresh.Token); err != nil {
		t.Fatalf("fresh token lost: %v", err)
	}
}
