package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := s.GetLimit(ctx, "u1"); got != Unlimited {
		t.Fatalf("GetLimit on empty store = %d, want %d", got, Unlimited)
	}

	if err := s.SetLimit(ctx, "u1", 3); err != nil {
		t.Fatal(err)
	}
	if got := s.GetLimit(ctx, "u1"); got != 3 {
		t.Fatalf("GetLimit = %d, want 3", got)
	}

	// Three decrements reach the floor.
	for want := 2; want >= 0; want-- {
		if got := s.DecrementLimit(ctx, "u1"); got != want {
			t.Fatalf("DecrementLimit = %d, want %d", got, want)
		}
	}
	// Floored at zero.
	if got := s.DecrementLimit(ctx, "u1"); got != 0 {
		t.Fatalf("DecrementLimit below floor = %d, want 0", got)
	}

	// Unlimited sentinel is left untouched.
	if err := s.SetLimit(ctx, "u2", Unlimited); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if got := s.DecrementLimit(ctx, "u2"); got != Unlimited {
			t.Fatalf("DecrementLimit on unlimited = %d, want %d", got, Unlimited)
		}
	}

	// Missing record stays missing.
	if got := s.DecrementLimit(ctx, "ghost"); got != Unlimited {
		t.Fatalf("DecrementLimit on missing record = %d, want %d", got, Unlimited)
	}

	if err := s.ResetLimit(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetLimit(ctx, "u1"); got != Unlimited {
		t.Fatalf("GetLimit after reset = %d, want %d", got, Unlimited)
	}
}

func TestResetAllLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		if err := s.SetLimit(ctx, u, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ResetAllLimits(ctx); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"a", "b", "c"} {
		if got := s.GetLimit(ctx, u); got != Unlimited {
			t.Fatalf("GetLimit(%s) after reset-all = %d, want %d", u, got, Unlimited)
		}
	}
}

func TestAccessExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetAccessExpiry(ctx, "u1"); ok {
		t.Fatal("expected no expiry on record")
	}

	want := time.Now().AddDate(0, 0, 7).Truncate(time.Second)
	if err := s.SetAccessExpiry(ctx, "u1", want); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetAccessExpiry(ctx, "u1")
	if !ok {
		t.Fatal("expected expiry on record")
	}
	if !got.Equal(want) {
		t.Fatalf("GetAccessExpiry = %v, want %v", got, want)
	}
}

func TestEmails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := s.GetEmail(ctx, "u1"); got != "" {
		t.Fatalf("GetEmail on empty store = %q", got)
	}
	if err := s.SetEmail(ctx, "u1", "jan@example.com"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetEmail(ctx, "u1"); got != "jan@example.com" {
		t.Fatalf("GetEmail = %q", got)
	}
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := s.GetProfile(ctx, "u1"); got != nil {
		t.Fatalf("GetProfile on empty store = %+v, want nil", got)
	}

	want := &Profile{
		FullName:   "Jan Kowalski",
		Email:      "jan@example.com",
		Street:     "Main St 1",
		City:       "Warsaw",
		PostalCode: "00-001",
		Country:    "Poland",
	}
	if err := s.SetProfile(ctx, "u1", want); err != nil {
		t.Fatal(err)
	}

	got := s.GetProfile(ctx, "u1")
	if got == nil {
		t.Fatal("GetProfile = nil after SetProfile")
	}
	if *got != *want {
		t.Fatalf("GetProfile = %+v, want %+v", got, want)
	}

	// Wholesale overwrite.
	if err := s.SetProfile(ctx, "u1", &Profile{FullName: "Anna"}); err != nil {
		t.Fatal(err)
	}
	got = s.GetProfile(ctx, "u1")
	if got.FullName != "Anna" || got.Email != "" {
		t.Fatalf("profile not overwritten wholesale: %+v", got)
	}
}

func TestMarkers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if s.HasMarker(ctx, "announce") {
		t.Fatal("marker set on empty store")
	}
	if err := s.SetMarker(ctx, "announce"); err != nil {
		t.Fatal(err)
	}
	if !s.HasMarker(ctx, "announce") {
		t.Fatal("marker missing after SetMarker")
	}
	if err := s.ClearMarkers(ctx); err != nil {
		t.Fatal(err)
	}
	if s.HasMarker(ctx, "announce") {
		t.Fatal("marker still set after ClearMarkers")
	}
}
