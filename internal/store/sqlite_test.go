package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/nsavelyev/maitre/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), 5)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func TestProfileRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil profile before set, got %+v", got)
	}

	p := &domain.Profile{UserID: "u1", Name: "Ada", Email: "ada@example.com", Phone: "+15551234"}
	if err := repo.SetProfile(ctx, p); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	got, err = repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got == nil || got.Name != "Ada" || got.Email != "ada@example.com" || got.Phone != "+15551234" {
		t.Errorf("profile mismatch: %+v", got)
	}

	// Update goes through the upsert path.
	p.Phone = "+15559999"
	if err := repo.SetProfile(ctx, p); err != nil {
		t.Fatalf("SetProfile update: %v", err)
	}
	got, _ = repo.GetProfile(ctx, "u1")
	if got.Phone != "+15559999" {
		t.Errorf("phone = %q after update, want +15559999", got.Phone)
	}

	if err := repo.DeleteProfile(ctx, "u1"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	got, _ = repo.GetProfile(ctx, "u1")
	if got != nil {
		t.Errorf("expected nil profile after delete, got %+v", got)
	}
}

func TestDeleteProfile_NoopWhenAbsent(t *testing.T) {
	repo := newTestStore(t)
	if err := repo.DeleteProfile(context.Background(), "nobody"); err != nil {
		t.Fatalf("DeleteProfile on missing user: %v", err)
	}
}

func TestHistoryOrderAndPruning(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	// The store was created with maxHistory=5; write 8 messages.
	for i := 0; i < 8; i++ {
		if err := repo.AppendHistory(ctx, "u1", domain.RoleUser, "msg-"+strconv.Itoa(i)); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	msgs, err := repo.GetHistory(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5 after pruning", len(msgs))
	}
	// Most-recent-last ordering.
	if msgs[0].Content != "msg-3" || msgs[4].Content != "msg-7" {
		t.Errorf("unexpected order: first=%q last=%q", msgs[0].Content, msgs[4].Content)
	}
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.AppendHistory(ctx, "u1", domain.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	msgs, err := repo.GetHistory(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("u2 history should be empty, got %d messages", len(msgs))
	}
}

func TestPendingBookingRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetPendingBooking(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPendingBooking: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil pending booking, got %+v", got)
	}

	b := &domain.BookingRequest{Restaurant: "Yardbird", Date: "2026-08-25", Time: "19:30", PartySize: 2}
	if err := repo.SetPendingBooking(ctx, "u1", b); err != nil {
		t.Fatalf("SetPendingBooking: %v", err)
	}

	got, err = repo.GetPendingBooking(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPendingBooking: %v", err)
	}
	if got == nil || got.Restaurant != "Yardbird" || got.Time != "19:30" || got.PartySize != 2 {
		t.Errorf("pending booking mismatch: %+v", got)
	}

	if err := repo.ClearPendingBooking(ctx, "u1"); err != nil {
		t.Fatalf("ClearPendingBooking: %v", err)
	}
	got, _ = repo.GetPendingBooking(ctx, "u1")
	if got != nil {
		t.Errorf("expected nil after clear, got %+v", got)
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
	if !isConflictError(errors.New("step: SQLITE_BUSY")) {
		t.Error("SQLITE_BUSY should be a conflict error")
	}
	if !isConflictError(errors.New("database is locked (5)")) {
		t.Error("database is locked should be a conflict error")
	}
	if isConflictError(errors.New("no such table")) {
		t.Error("unrelated errors should not be conflict errors")
	}
}
