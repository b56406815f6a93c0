package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kuitang/smartnotes/internal/db"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// Session configuration
const (
	DefaultSessionDuration = 30 * 24 * time.Hour // 30 days
	SessionIDLength        = 32                  // 256 bits
	SessionCookieName      = "session_id"
)

// EventKind distinguishes session change notifications.
type EventKind int

const (
	EventSignedIn EventKind = iota
	EventSignedOut
)

// Event is delivered to subscribers whenever a session is established or
// cleared. UserID is always set.
type Event struct {
	Kind   EventKind
	UserID string
}

// Listener receives session change events.
type Listener func(Event)

// SessionService handles session management and broadcasts session change
// notifications to subscribers (profile state is reconciled off these).
type SessionService struct {
	store    *db.Store
	duration time.Duration

	mu        sync.RWMutex
	listeners []Listener
}

// NewSessionService creates a new session service. duration of 0 uses
// DefaultSessionDuration.
func NewSessionService(store *db.Store, duration time.Duration) *SessionService {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionService{
		store:    store,
		duration: duration,
	}
}

// Subscribe registers a listener for session change notifications.
// Listeners are invoked synchronously, after the storage mutation commits.
func (s *SessionService) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *SessionService) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// Create creates a new session for a user and notifies subscribers.
// Returns the session ID which should be stored in a cookie (or presented
// as a bearer credential).
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.duration)

	err = s.store.UpsertSession(ctx, sessionID, userID, expiresAt.Unix(), now.Unix())
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	s.notify(Event{Kind: EventSignedIn, UserID: userID})
	return sessionID, nil
}

// Validate checks if a session is valid and returns the user ID.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.store.GetValidSession(ctx, sessionID, time.Now().Unix())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

// Delete removes a session (sign-out) and notifies subscribers so any
// per-user derived state (profile cache) is cleared unconditionally.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	userID, err := s.store.GetValidSession(ctx, sessionID, time.Now().Unix())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get session: %w", err)
	}

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if userID != "" {
		s.notify(Event{Kind: EventSignedOut, UserID: userID})
	}
	return nil
}

// DeleteByUserID removes all sessions for a user and notifies subscribers.
func (s *SessionService) DeleteByUserID(ctx context.Context, userID string) error {
	if err := s.store.DeleteSessionsByUserID(ctx, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	s.notify(Event{Kind: EventSignedOut, UserID: userID})
	return nil
}

// Cleanup removes all expired sessions.
// This should be called periodically by a background goroutine.
func (s *SessionService) Cleanup(ctx context.Context) error {
	if err := s.store.DeleteExpiredSessions(ctx, time.Now().Unix()); err != nil {
		return fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return nil
}

// Cookie helpers

// SetCookie sets the session cookie on the response.
func SetCookie(w http.ResponseWriter, sessionID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultSessionDuration.Seconds()),
	})
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SessionIDFromRequest retrieves the session credential from the request:
// the session cookie, or an Authorization bearer token for API clients.
func SessionIDFromRequest(r *http.Request) (string, error) {
	if authz := r.Header.Get("Authorization"); len(authz) > 7 && authz[:7] == "Bearer " {
		return authz[7:], nil
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return cookie.Value, nil
}

// Helper functions

func generateSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
