package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/testdb"
)

func setupSessions(t *testing.T, duration time.Duration) (*SessionService, *db.Store) {
	t.Helper()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewSessionService(store, duration), store
}

// eventRecorder collects session events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, 0)
	ctx := context.Background()

	sessionID, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a non-empty session ID")
	}

	userID, err := sessions.Validate(ctx, sessionID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}

	if err := sessions.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := sessions.Validate(ctx, sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestSession_UnknownIDRejected(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, 0)

	_, err := sessions.Validate(context.Background(), "bogus-session")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSession_ExpiredRejected(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, time.Millisecond)
	ctx := context.Background()

	sessionID, err := sessions.Create(ctx, "user-exp")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Expiry is stored at whole-second resolution, so a 1ms session is
	// already expired at the next validation.
	time.Sleep(5 * time.Millisecond)
	if _, err := sessions.Validate(ctx, sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for expired session, got %v", err)
	}
}

func TestSession_CleanupRemovesExpired(t *testing.T) {
	t.Parallel()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	shortLived := NewSessionService(store, time.Millisecond)
	longLived := NewSessionService(store, time.Hour)

	expiredID, err := shortLived.Create(ctx, "user-a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	liveID, err := longLived.Create(ctx, "user-b")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := longLived.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if _, err := longLived.Validate(ctx, expiredID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
	if _, err := longLived.Validate(ctx, liveID); err != nil {
		t.Fatalf("live session should survive cleanup: %v", err)
	}
}

func TestSession_EventsOnCreateAndDelete(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, 0)
	ctx := context.Background()

	rec := &eventRecorder{}
	sessions.Subscribe(rec.listen)

	sessionID, err := sessions.Create(ctx, "user-ev")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := sessions.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventSignedIn || events[0].UserID != "user-ev" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != EventSignedOut || events[1].UserID != "user-ev" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestSession_DeleteUnknownIsQuiet(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, 0)

	rec := &eventRecorder{}
	sessions.Subscribe(rec.listen)

	if err := sessions.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Delete of unknown session should not error: %v", err)
	}
	if events := rec.all(); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestSession_DeleteByUserID(t *testing.T) {
	t.Parallel()
	sessions, _ := setupSessions(t, 0)
	ctx := context.Background()

	first, err := sessions.Create(ctx, "user-multi")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := sessions.Create(ctx, "user-multi")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other, err := sessions.Create(ctx, "user-other")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := sessions.DeleteByUserID(ctx, "user-multi"); err != nil {
		t.Fatalf("DeleteByUserID failed: %v", err)
	}

	for _, id := range []string{first, second} {
		if _, err := sessions.Validate(ctx, id); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected session %s gone, got %v", id, err)
		}
	}
	if _, err := sessions.Validate(ctx, other); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	t.Parallel()

	t.Run("bearer token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/notes", nil)
		r.Header.Set("Authorization", "Bearer abc123")
		id, err := SessionIDFromRequest(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "abc123" {
			t.Fatalf("expected abc123, got %q", id)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/notes", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-session"})
		id, err := SessionIDFromRequest(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "cookie-session" {
			t.Fatalf("expected cookie-session, got %q", id)
		}
	})

	t.Run("bearer wins over cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/notes", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
		id, err := SessionIDFromRequest(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "from-header" {
			t.Fatalf("expected from-header, got %q", id)
		}
	})

	t.Run("no credential", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/notes", nil)
		if _, err := SessionIDFromRequest(r); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}
