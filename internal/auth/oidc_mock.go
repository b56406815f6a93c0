package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// mockCodeTTL bounds how long an issued mock authorization code stays valid.
const mockCodeTTL = 10 * time.Minute

// LocalMockOIDCProvider is a self-contained OIDC mock for local
// development. Instead of redirecting to Google, it serves a local consent
// page where the developer enters an email to sign in as. This keeps
// "Sign in with Google" functional in --no-oidc mode.
type LocalMockOIDCProvider struct {
	baseURL string

	mu    sync.Mutex
	codes map[string]pendingCode
}

type pendingCode struct {
	email     string
	createdAt time.Time
}

// NewLocalMockOIDCProvider creates a mock OIDC provider serving local
// endpoints under baseURL.
func NewLocalMockOIDCProvider(baseURL string) *LocalMockOIDCProvider {
	return &LocalMockOIDCProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		codes:   make(map[string]pendingCode),
	}
}

// AuthURL returns the local mock consent page.
func (p *LocalMockOIDCProvider) AuthURL(state string) string {
	return fmt.Sprintf("%s/auth/mock-oidc/authorize?state=%s", p.baseURL, url.QueryEscape(state))
}

// ExchangeCode redeems a previously-issued code for mock claims.
func (p *LocalMockOIDCProvider) ExchangeCode(_ context.Context, code string) (*Claims, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.codes[code]
	if !ok {
		return nil, ErrCodeExchangeFailed
	}
	delete(p.codes, code)

	if time.Since(pending.createdAt) > mockCodeTTL {
		return nil, ErrCodeExchangeFailed
	}

	return &Claims{
		Sub:           "mock-" + pending.email,
		Email:         pending.email,
		Name:          "Test User",
		EmailVerified: true,
	}, nil
}

// RegisterRoutes registers the mock consent page and its form handler.
func (p *LocalMockOIDCProvider) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/mock-oidc/authorize", p.handleAuthorize)
	mux.HandleFunc("POST /auth/mock-oidc/authorize", p.handleConsent)
}

func (p *LocalMockOIDCProvider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Error(w, "Missing state parameter", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>Mock Google Sign-In</title>
<style>
body { font-family: system-ui; max-width: 400px; margin: 80px auto; padding: 0 20px; }
h1 { font-size: 1.3em; color: #333; }
.note { background: #fff3cd; border: 1px solid #ffc107; border-radius: 8px; padding: 12px; margin: 16px 0; font-size: 0.9em; }
input[type=email] { width: 100%%; padding: 10px; border: 1px solid #ccc; border-radius: 6px; font-size: 1em; box-sizing: border-box; }
button { width: 100%%; padding: 10px; background: #4285F4; color: white; border: none; border-radius: 6px; font-size: 1em; cursor: pointer; margin-top: 12px; }
</style></head>
<body>
<h1>Mock Google Sign-In</h1>
<div class="note">This is a local mock. In production, this redirects to Google.</div>
<form method="POST" action="/auth/mock-oidc/authorize">
<input type="hidden" name="state" value="%s">
<label for="email">Sign in as:</label><br><br>
<input type="email" id="email" name="email" value="test@example.com" required autofocus>
<button type="submit">Sign In</button>
</form>
</body></html>`, state)
}

func (p *LocalMockOIDCProvider) handleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	state := r.FormValue("state")
	emailAddr := r.FormValue("email")
	if state == "" || emailAddr == "" {
		http.Error(w, "Missing state or email", http.StatusBadRequest)
		return
	}

	codeBytes := make([]byte, 32)
	if _, err := rand.Read(codeBytes); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	code := hex.EncodeToString(codeBytes)

	p.mu.Lock()
	p.codes[code] = pendingCode{email: emailAddr, createdAt: time.Now()}
	p.mu.Unlock()

	redirect := fmt.Sprintf("%s/auth/google/callback?state=%s&code=%s",
		p.baseURL, url.QueryEscape(state), url.QueryEscape(code))
	http.Redirect(w, r, redirect, http.StatusFound)
}
