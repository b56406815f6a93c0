package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kuitang/smartnotes/internal/testdb"
)

func setupMiddleware(t *testing.T) (*Middleware, *SessionService, *Identity) {
	t.Helper()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	users := NewUserService(store)
	sessions := NewSessionService(store, 0)

	identity, err := users.Register(context.Background(), "mw@example.com", "password123", "Middleware User")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return NewMiddleware(sessions, users), sessions, identity
}

func TestRequireAuth_ValidSession(t *testing.T) {
	t.Parallel()
	mw, sessions, identity := setupMiddleware(t)

	sessionID, err := sessions.Create(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var seen *Identity
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	r := httptest.NewRequest("GET", "/api/notes", nil)
	r.Header.Set("Authorization", "Bearer "+sessionID)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen == nil || seen.ID != identity.ID {
		t.Fatalf("expected identity %s in context, got %+v", identity.ID, seen)
	}
}

func TestRequireAuth_MissingSession(t *testing.T) {
	t.Parallel()
	mw, _, _ := setupMiddleware(t)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a session")
	}))

	r := httptest.NewRequest("GET", "/api/notes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuth_DeletedSession(t *testing.T) {
	t.Parallel()
	mw, sessions, identity := setupMiddleware(t)
	ctx := context.Background()

	sessionID, err := sessions.Create(ctx, identity.ID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := sessions.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with a deleted session")
	}))

	r := httptest.NewRequest("GET", "/api/notes", nil)
	r.Header.Set("Authorization", "Bearer "+sessionID)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	t.Parallel()
	mw, _, _ := setupMiddleware(t)

	ran := false
	handler := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		if IdentityFromContext(r.Context()) != nil {
			t.Fatal("anonymous request should carry no identity")
		}
	}))

	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if !ran {
		t.Fatal("handler should run for anonymous requests")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
