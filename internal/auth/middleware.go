package auth

import (
	"context"
	"net/http"
)

// Context keys for auth data
type contextKey string

const identityKey contextKey = "identity"

// Middleware provides authentication middleware for HTTP handlers.
type Middleware struct {
	sessionService *SessionService
	userService    *UserService
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(sessionService *SessionService, userService *UserService) *Middleware {
	return &Middleware{
		sessionService: sessionService,
		userService:    userService,
	}
}

// RequireAuth is middleware that requires a valid session.
// Returns 401 Unauthorized if no valid session is present.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := m.resolve(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth is middleware that adds the identity to context if present.
// Failures to resolve a session degrade to anonymous rather than erroring,
// so the surface stays usable even when the identity lookup misbehaves.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := m.resolve(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) resolve(r *http.Request) (*Identity, bool) {
	sessionID, err := SessionIDFromRequest(r)
	if err != nil {
		return nil, false
	}
	userID, err := m.sessionService.Validate(r.Context(), sessionID)
	if err != nil {
		return nil, false
	}
	identity, err := m.userService.GetIdentity(r.Context(), userID)
	if err != nil {
		return nil, false
	}
	return identity, true
}

// IdentityFromContext retrieves the authenticated identity from the request
// context. Returns nil if no user is authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// IsAuthenticated checks if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return IdentityFromContext(ctx) != nil
}
