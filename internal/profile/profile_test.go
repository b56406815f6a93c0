package profile

import (
	"context"
	"testing"
	"time"

	"github.com/kuitang/smartnotes/internal/auth"
	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/errs"
	"github.com/kuitang/smartnotes/internal/testdb"
)

func setupProfiles(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	return NewService(store), store
}

func testIdentity(userID string) *auth.Identity {
	return &auth.Identity{
		ID:        userID,
		Email:     userID + "@example.com",
		Name:      "Test User",
		CreatedAt: time.Now(),
	}
}

func TestLoad_MissingProfileIsNotFound(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)

	_, err := svc.Load(context.Background(), "user-missing")
	if !errs.IsCode(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestLoad_StorageFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	svc, store := setupProfiles(t)

	// A closed store is indistinguishable from a transient outage; the
	// error must not be mistaken for "no profile yet".
	store.Close()
	_, err := svc.Load(context.Background(), "user-any")
	if !errs.IsCode(err, errs.Unavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestCreate_Defaults(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)

	p, err := svc.Create(context.Background(), "user-new", "new@example.com", "New User")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Tier != TierFree {
		t.Fatalf("expected free tier, got %q", p.Tier)
	}
	if p.NotesCount != 0 {
		t.Fatalf("expected 0 notes, got %d", p.NotesCount)
	}
	if p.SubscriptionStatus != StatusActive {
		t.Fatalf("expected active account status, got %q", p.SubscriptionStatus)
	}
}

func TestCreate_DuplicateIsFailedPrecondition(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-dup", "a@example.com", "A"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := svc.Create(ctx, "user-dup", "a@example.com", "A")
	if !errs.IsCode(err, errs.FailedPrecondition) {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestEnsure_LazilyCreates(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)

	p, err := svc.Ensure(context.Background(), testIdentity("user-lazy"))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if p.Email != "user-lazy@example.com" || p.Tier != TierFree {
		t.Fatalf("unexpected profile: %+v", p)
	}

	// Second Ensure loads the same row.
	again, err := svc.Ensure(context.Background(), testIdentity("user-lazy"))
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("Ensure created a second profile: %d vs %d", again.ID, p.ID)
	}
}

func TestEnsure_IncompleteIdentityDoesNotCreate(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)

	identity := &auth.Identity{ID: "user-bare", Email: "bare@example.com"}
	_, err := svc.Ensure(context.Background(), identity)
	if !errs.IsCode(err, errs.NotFound) {
		t.Fatalf("expected NotFound without display name, got %v", err)
	}

	// No row was written.
	_, err = svc.Load(context.Background(), "user-bare")
	if !errs.IsCode(err, errs.NotFound) {
		t.Fatalf("profile must not exist, got %v", err)
	}
}

func TestEnsure_TransientErrorSurfaced(t *testing.T) {
	t.Parallel()
	svc, store := setupProfiles(t)

	store.Close()
	_, err := svc.Ensure(context.Background(), testIdentity("user-outage"))
	if !errs.IsCode(err, errs.Unavailable) {
		t.Fatalf("a transient failure must not trigger creation, got %v", err)
	}
}

func TestEnsure_LostRaceFallsBackToLoad(t *testing.T) {
	t.Parallel()
	svc, store := setupProfiles(t)
	ctx := context.Background()

	// Simulate a concurrent creator: another service instance sharing the
	// store creates the row between our Load and Create.
	other := NewService(store)
	if _, err := other.Create(ctx, "user-race", "race@example.com", "Racer"); err != nil {
		t.Fatalf("competitor Create failed: %v", err)
	}

	// Our service has no cache entry, so Ensure hits Load first and finds
	// the competitor's row.
	p, err := svc.Ensure(ctx, testIdentity("user-race"))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if p.Email != "race@example.com" {
		t.Fatalf("expected competitor's row, got %+v", p)
	}
}

func TestUpdate_RefreshesCache(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-upd", "u@example.com", "U"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tier := TierPremium
	p, err := svc.Update(ctx, "user-upd", Patch{Tier: &tier})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if p.Tier != TierPremium {
		t.Fatalf("expected premium, got %q", p.Tier)
	}

	// The cache serves the fresh value.
	cached, err := svc.Load(ctx, "user-upd")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cached.Tier != TierPremium {
		t.Fatalf("cache is stale: %q", cached.Tier)
	}
}

func TestUpdate_MissingProfileIsNotFound(t *testing.T) {
	t.Parallel()
	svc, _ := setupProfiles(t)

	tier := TierPremium
	_, err := svc.Update(context.Background(), "user-none", Patch{Tier: &tier})
	if !errs.IsCode(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSessionEvents_ClearCache(t *testing.T) {
	t.Parallel()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	svc := NewService(store)
	sessions := auth.NewSessionService(store, time.Hour)
	svc.AttachTo(sessions)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-ev", "ev@example.com", "Ev"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !svc.Cached("user-ev") {
		t.Fatal("profile should be cached after create")
	}

	sessionID, err := sessions.Create(ctx, "user-ev")
	if err != nil {
		t.Fatalf("session Create failed: %v", err)
	}
	// Sign-in invalidated the cache; warm it again.
	if _, err := svc.Load(ctx, "user-ev"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !svc.Cached("user-ev") {
		t.Fatal("profile should be cached after load")
	}

	if err := sessions.Delete(ctx, sessionID); err != nil {
		t.Fatalf("session Delete failed: %v", err)
	}
	if svc.Cached("user-ev") {
		t.Fatal("sign-out must clear the cached profile")
	}
}
