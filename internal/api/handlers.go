// Package api exposes the JSON HTTP surface: authentication, profile,
// notes CRUD with filtering, rendered HTML, AI summaries, and the PayPal
// subscription handshake.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kuitang/smartnotes/internal/auth"
	"github.com/kuitang/smartnotes/internal/billing"
	"github.com/kuitang/smartnotes/internal/email"
	"github.com/kuitang/smartnotes/internal/errs"
	"github.com/kuitang/smartnotes/internal/filter"
	"github.com/kuitang/smartnotes/internal/notes"
	"github.com/kuitang/smartnotes/internal/obs"
	"github.com/kuitang/smartnotes/internal/profile"
	"github.com/kuitang/smartnotes/internal/summary"
)

const oauthStateCookie = "oauth_state"

// Handler wires the application services into HTTP handlers.
type Handler struct {
	users      *auth.UserService
	sessions   *auth.SessionService
	middleware *auth.Middleware
	profiles   *profile.Service
	notes      *notes.Service
	billing    *billing.Service
	summarizer summary.Summarizer
	email      email.EmailService
	oidc       auth.OIDCClient

	secureCookies bool
}

// Deps bundles the services a Handler needs.
type Deps struct {
	Users      *auth.UserService
	Sessions   *auth.SessionService
	Profiles   *profile.Service
	Notes      *notes.Service
	Billing    *billing.Service
	Summarizer summary.Summarizer
	Email      email.EmailService
	OIDC       auth.OIDCClient

	SecureCookies bool
}

// NewHandler creates an API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		users:         deps.Users,
		sessions:      deps.Sessions,
		middleware:    auth.NewMiddleware(deps.Sessions, deps.Users),
		profiles:      deps.Profiles,
		notes:         deps.Notes,
		billing:       deps.Billing,
		summarizer:    deps.Summarizer,
		email:         deps.Email,
		oidc:          deps.OIDC,
		secureCookies: deps.SecureCookies,
	}
}

// RegisterRoutes registers all routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Authentication
	mux.HandleFunc("POST /api/auth/signup", h.SignUp)
	mux.HandleFunc("POST /api/auth/signin", h.SignIn)
	mux.Handle("POST /api/auth/signout", h.middleware.RequireAuth(http.HandlerFunc(h.SignOut)))
	if h.oidc != nil {
		mux.HandleFunc("GET /auth/google/login", h.GoogleLogin)
		mux.HandleFunc("GET /auth/google/callback", h.GoogleCallback)
	}

	// Profile
	mux.Handle("GET /api/profile", h.requireAuth(h.GetProfile))

	// Notes
	mux.Handle("GET /api/notes", h.requireAuth(h.ListNotes))
	mux.Handle("POST /api/notes", h.requireAuth(h.CreateNote))
	mux.Handle("GET /api/notes/{id}", h.requireAuth(h.GetNote))
	mux.Handle("PUT /api/notes/{id}", h.requireAuth(h.UpdateNote))
	mux.Handle("DELETE /api/notes/{id}", h.requireAuth(h.DeleteNote))
	mux.Handle("GET /api/notes/{id}/html", h.requireAuth(h.NoteHTML))
	mux.Handle("POST /api/notes/{id}/summary", h.requireAuth(h.SummarizeNote))

	// Subscription handshake
	mux.Handle("POST /api/create-paypal-subscription", h.requireAuth(h.CreateSubscription))
	mux.Handle("POST /api/complete-paypal-subscription", h.requireAuth(h.CompleteSubscription))
	mux.Handle("POST /api/cancel-paypal-subscription", h.requireAuth(h.CancelSubscription))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) requireAuth(fn http.HandlerFunc) http.Handler {
	return h.middleware.RequireAuth(fn)
}

// UserID extracts the authenticated user id from a request, or "".
// Used by the rate limit middleware.
func (h *Handler) UserID(r *http.Request) string {
	sessionID, err := auth.SessionIDFromRequest(r)
	if err != nil {
		return ""
	}
	userID, err := h.sessions.Validate(r.Context(), sessionID)
	if err != nil {
		return ""
	}
	return userID
}

// IsPremium reports whether the request's user is on the premium tier.
// Used by the rate limit middleware.
func (h *Handler) IsPremium(r *http.Request) bool {
	userID := h.UserID(r)
	if userID == "" {
		return false
	}
	p, err := h.profiles.Load(r.Context(), userID)
	if err != nil {
		return false
	}
	return p.IsPremium()
}

// =============================================================================
// Authentication
// =============================================================================

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	User      *auth.Identity   `json:"user"`
	Profile   *profile.Profile `json:"profile,omitempty"`
}

// SignUp handles POST /api/auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	identity, err := h.users.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountExists):
			writeError(w, http.StatusConflict, "An account with this email already exists")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "Email is required")
		default:
			writeServiceError(w, err)
		}
		return
	}

	prof, err := h.profiles.Ensure(r.Context(), identity)
	if err != nil {
		// The account exists; the profile will be created on next load.
		obs.From(r.Context()).Warn("profile_ensure_failed", "user_id", identity.ID, "error", err)
		prof = nil
	}

	if sendErr := h.email.Send(identity.Email, email.TemplateWelcome, email.WelcomeData{Name: identity.Name}); sendErr != nil {
		obs.From(r.Context()).Warn("welcome_email_failed", "user_id", identity.ID, "error", sendErr)
	}

	h.startSession(w, r, identity, prof, http.StatusCreated)
}

// SignIn handles POST /api/auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	identity, err := h.users.VerifyLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	prof, err := h.profiles.Ensure(r.Context(), identity)
	if err != nil {
		obs.From(r.Context()).Warn("profile_ensure_failed", "user_id", identity.ID, "error", err)
		prof = nil
	}

	h.startSession(w, r, identity, prof, http.StatusOK)
}

// SignOut handles POST /api/auth/signout. Deleting the session also clears
// any cached profile state for the user.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID, err := auth.SessionIDFromRequest(r)
	if err == nil {
		if delErr := h.sessions.Delete(r.Context(), sessionID); delErr != nil {
			obs.From(r.Context()).Warn("session_delete_failed", "error", delErr)
		}
	}
	auth.ClearCookie(w, h.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, identity *auth.Identity, prof *profile.Profile, status int) {
	sessionID, err := h.sessions.Create(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	auth.SetCookie(w, sessionID, h.secureCookies)
	writeJSON(w, status, sessionResponse{
		SessionID: sessionID,
		User:      identity,
		Profile:   prof,
	})
}

// GoogleLogin handles GET /auth/google/login.
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oidc.AuthURL(state), http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	claims, err := h.oidc.ExchangeCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	identity, err := h.users.FindOrCreateByOIDC(r.Context(), claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if _, err := h.profiles.Ensure(r.Context(), identity); err != nil {
		obs.From(r.Context()).Warn("profile_ensure_failed", "user_id", identity.ID, "error", err)
	}

	sessionID, err := h.sessions.Create(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	auth.SetCookie(w, sessionID, h.secureCookies)
	http.Redirect(w, r, "/", http.StatusFound)
}

// =============================================================================
// Profile
// =============================================================================

// GetProfile handles GET /api/profile. The profile is created lazily on
// first access for identities that carry an email and display name.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	prof, err := h.profiles.Ensure(r.Context(), identity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

// =============================================================================
// Notes
// =============================================================================

type listNotesResponse struct {
	Notes  []notes.Note   `json:"notes"`
	Total  int            `json:"total"`
	Facets []filter.Facet `json:"facets"`
	Tags   []string       `json:"tags"`
}

// ListNotes handles GET /api/notes?q=&tag=. Filtering composes a
// case-insensitive substring search with an exact tag match; facets are
// always computed over the full collection.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	all, err := h.notes.List(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	q := filter.Query{
		Search: r.URL.Query().Get("q"),
		Tag:    r.URL.Query().Get("tag"),
	}
	visible := filter.Apply(all, q)

	writeJSON(w, http.StatusOK, listNotesResponse{
		Notes:  visible,
		Total:  len(all),
		Facets: filter.Facets(all),
		Tags:   filter.Tags(all),
	})
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var params notes.CreateNoteParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	note, err := h.notes.Create(r.Context(), identity.ID, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	note, err := h.notes.Get(r.Context(), identity.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var params notes.UpdateNoteParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	note, err := h.notes.Update(r.Context(), identity.ID, r.PathValue("id"), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	if err := h.notes.Delete(r.Context(), identity.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NoteHTML handles GET /api/notes/{id}/html, returning the note content
// rendered from markdown and sanitized.
func (h *Handler) NoteHTML(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	note, err := h.notes.Get(r.Context(), identity.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(notes.RenderHTML(note.Content))
}

type summaryResponse struct {
	NoteID  string `json:"note_id"`
	Summary string `json:"summary"`
}

// SummarizeNote handles POST /api/notes/{id}/summary. Premium only.
func (h *Handler) SummarizeNote(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	prof, err := h.profiles.Load(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !prof.IsPremium() {
		writeError(w, http.StatusForbidden, "AI summaries require a premium subscription")
		return
	}

	note, err := h.notes.Get(r.Context(), identity.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	text, err := h.summarizer.Summarize(ctx, note.Title, note.Content)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Summary generation failed, try again later")
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{NoteID: note.ID, Summary: text})
}

// =============================================================================
// Subscription handshake
// =============================================================================

type completeSubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionID"`
}

// CreateSubscription handles POST /api/create-paypal-subscription.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	result, err := h.billing.Begin(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteSubscription handles POST /api/complete-paypal-subscription.
// A failed provider confirmation leaves the profile untouched.
func (h *Handler) CompleteSubscription(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req completeSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	prof, err := h.billing.Complete(r.Context(), identity.ID, req.SubscriptionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if sendErr := h.email.Send(identity.Email, email.TemplateSubscriptionActive, email.SubscriptionActiveData{
		Name:           identity.Name,
		SubscriptionID: req.SubscriptionID,
	}); sendErr != nil {
		obs.From(r.Context()).Warn("subscription_email_failed", "user_id", identity.ID, "error", sendErr)
	}

	writeJSON(w, http.StatusOK, prof)
}

// CancelSubscription handles POST /api/cancel-paypal-subscription.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	prof, err := h.billing.Cancel(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

// =============================================================================
// Response helpers
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a coded service error onto an HTTP response
// without leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, errs.HTTPStatus(errs.CodeOf(err)), errs.MessageOf(err))
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
