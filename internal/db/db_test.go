package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/testdb"
)

func setupStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertProfile(t *testing.T, store *db.Store, userID string, notesCount int64) {
	t.Helper()
	_, err := store.InsertProfile(context.Background(), db.ProfileRow{
		UserID:             userID,
		Email:              userID + "@example.com",
		FullName:           "Counter User",
		SubscriptionTier:   "free",
		NotesCount:         notesCount,
		SubscriptionStatus: sql.NullString{String: "active", Valid: true},
		CreatedAt:          1000,
		UpdatedAt:          1000,
	})
	if err != nil {
		t.Fatalf("InsertProfile failed: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()

	row := db.UserRow{UserID: "user-uniq", Email: "uniq@example.com", FullName: "Uniq", CreatedAt: 1000}
	if err := store.InsertUser(ctx, row); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := store.InsertUser(ctx, row)
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if db.IsUniqueViolation(errors.New("disk I/O error")) {
		t.Fatal("unrelated error misclassified as unique violation")
	}
}

func TestInsertNoteWithCount_Increments(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	insertProfile(t, store, "user-inc", 0)

	err := store.InsertNoteWithCount(ctx, db.NoteRow{
		ID: "note-1", UserID: "user-inc", Title: "t", Content: "c", Tags: "[]",
		CreatedAt: 1001, UpdatedAt: 1001,
	})
	if err != nil {
		t.Fatalf("InsertNoteWithCount failed: %v", err)
	}

	profile, err := store.GetProfileByUserID(ctx, "user-inc")
	if err != nil {
		t.Fatalf("GetProfileByUserID failed: %v", err)
	}
	if profile.NotesCount != 1 {
		t.Fatalf("expected notes_count 1, got %d", profile.NotesCount)
	}
}

func TestDeleteNoteWithCount_FlooredAtZero(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()

	// A stale counter of zero must not go negative when the note it missed
	// is deleted.
	insertProfile(t, store, "user-floor", 0)
	_, err := store.DB().ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, content, tags, created_at, updated_at)
		 VALUES ('note-x', 'user-floor', 't', 'c', '[]', 1001, 1001)`)
	if err != nil {
		t.Fatalf("raw note insert failed: %v", err)
	}

	if err := store.DeleteNoteWithCount(ctx, "user-floor", "note-x", 1002); err != nil {
		t.Fatalf("DeleteNoteWithCount failed: %v", err)
	}

	profile, err := store.GetProfileByUserID(ctx, "user-floor")
	if err != nil {
		t.Fatalf("GetProfileByUserID failed: %v", err)
	}
	if profile.NotesCount != 0 {
		t.Fatalf("expected notes_count floored at 0, got %d", profile.NotesCount)
	}
}

func TestDeleteNoteWithCount_MissingNoteLeavesCounter(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	insertProfile(t, store, "user-miss", 3)

	err := store.DeleteNoteWithCount(ctx, "user-miss", "no-such-note", 1002)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	profile, err := store.GetProfileByUserID(ctx, "user-miss")
	if err != nil {
		t.Fatalf("GetProfileByUserID failed: %v", err)
	}
	if profile.NotesCount != 3 {
		t.Fatalf("counter changed on failed delete: %d", profile.NotesCount)
	}
}
