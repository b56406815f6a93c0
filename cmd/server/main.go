// smartnotes server: note-taking SaaS with free-tier quotas, PayPal
// subscriptions, and AI summaries for premium users.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/smartnotes/internal/api"
	"github.com/kuitang/smartnotes/internal/auth"
	"github.com/kuitang/smartnotes/internal/billing"
	"github.com/kuitang/smartnotes/internal/config"
	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/email"
	"github.com/kuitang/smartnotes/internal/notes"
	"github.com/kuitang/smartnotes/internal/obs"
	"github.com/kuitang/smartnotes/internal/profile"
	"github.com/kuitang/smartnotes/internal/ratelimit"
	"github.com/kuitang/smartnotes/internal/summary"
)

func main() {
	obs.Init()
	log := obs.Pkg("main")

	noEmail, noPayPal, noOIDC, noAI, addr := config.ParseFlags()
	cfg, err := config.LoadConfig(noEmail, noPayPal, noOIDC, noAI, addr)
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	cfg.PrintStartupSummary()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.DatabasePath, cfg.MasterKey)
	if err != nil {
		return err
	}
	defer store.Close()

	// Core services
	users := auth.NewUserService(store)
	sessions := auth.NewSessionService(store, cfg.SessionDuration)
	profiles := profile.NewService(store)
	profiles.AttachTo(sessions)
	notesSvc := notes.NewService(store, profiles)

	// External collaborators, mocked per flags.
	var emailSvc email.EmailService
	if cfg.NoEmail {
		emailSvc = email.NewMockEmailService()
	} else {
		emailSvc = email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}

	var paypal billing.PayPalClient
	if cfg.NoPayPal {
		paypal = billing.NewMockPayPalClient()
	} else {
		paypal = billing.NewPayPalREST(ctx, billing.PayPalConfig{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			BaseURL:      cfg.PayPalBaseURL,
			ReturnURL:    cfg.BaseURL + "/subscription/return",
			CancelURL:    cfg.BaseURL + "/subscription/cancel",
		})
	}
	billingSvc := billing.NewService(profiles, paypal, cfg.PayPalPlanID)

	var summarizer summary.Summarizer
	if cfg.NoAI {
		summarizer = summary.NewMockSummarizer()
	} else {
		summarizer = summary.NewOpenAISummarizer(cfg.OpenAIAPIKey)
	}

	var mockOIDC *auth.LocalMockOIDCProvider
	var oidcClient auth.OIDCClient
	if cfg.NoOIDC {
		mockOIDC = auth.NewLocalMockOIDCProvider(cfg.BaseURL)
		oidcClient = mockOIDC
	} else {
		oidcClient, err = auth.NewGoogleOIDCClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			return err
		}
	}

	handler := api.NewHandler(api.Deps{
		Users:         users,
		Sessions:      sessions,
		Profiles:      profiles,
		Notes:         notesSvc,
		Billing:       billingSvc,
		Summarizer:    summarizer,
		Email:         emailSvc,
		OIDC:          oidcClient,
		SecureCookies: cfg.RequireSecureCookies(),
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if mockOIDC != nil {
		mockOIDC.RegisterRoutes(mux)
	}

	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	var root http.Handler = mux
	root = ratelimit.Middleware(limiter, handler.UserID, handler.IsPremium)(root)
	root = obs.AccessLogMiddleware("api", root)
	root = obs.RequestContextMiddleware(root)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Expired sessions are purged hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sessions.Cleanup(context.Background()); err != nil {
					log.Error("session cleanup failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
