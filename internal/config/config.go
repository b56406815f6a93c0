// Package config loads application configuration from CLI flags and
// environment variables, validates required fields, and provides defaults.
//
// CLI flags control which external services are mocked (--no-email,
// --no-paypal, --no-oidc, --no-ai, --test). Environment variables provide
// secrets and service configuration.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/smartnotes/internal/ratelimit"
)

const paypalSandboxBaseURL = "https://api-m.sandbox.paypal.com"

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database and encryption
	DatabasePath    string // single SQLCipher database file
	MasterKey       string // 64 hex characters (32 bytes)
	SessionDuration time.Duration

	// Rate limiting
	RateLimitConfig ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoOIDC   bool // --no-oidc: mock Google OIDC provider
	NoEmail  bool // --no-email: log emails instead of sending
	NoPayPal bool // --no-paypal: in-memory payment provider
	NoAI     bool // --no-ai: deterministic mock summaries

	// Google OIDC
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Resend email
	ResendAPIKey    string
	ResendFromEmail string

	// PayPal
	PayPalClientID     string
	PayPalClientSecret string
	PayPalBaseURL      string
	PayPalPlanID       string

	// OpenAI
	OpenAIAPIKey string
}

// ValidationError collects every configuration problem found.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags registers and parses the CLI flags. Call before LoadConfig.
func ParseFlags() (noEmail, noPayPal, noOIDC, noAI bool, addr string) {
	var testMode bool
	flag.BoolVar(&noEmail, "no-email", false, "Use mock email service (logs emails to console)")
	flag.BoolVar(&noPayPal, "no-paypal", false, "Use mock PayPal provider (in-memory)")
	flag.BoolVar(&noOIDC, "no-oidc", false, "Use mock Google OIDC provider")
	flag.BoolVar(&noAI, "no-ai", false, "Use mock AI summarizer")
	flag.BoolVar(&testMode, "test", false, "Shorthand for --no-email --no-paypal --no-oidc --no-ai")
	flag.StringVar(&addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()

	if testMode {
		noEmail = true
		noPayPal = true
		noOIDC = true
		noAI = true
	}
	return noEmail, noPayPal, noOIDC, noAI, addr
}

// LoadConfig loads configuration from environment variables and flag values.
func LoadConfig(noEmail, noPayPal, noOIDC, noAI bool, addr string) (*Config, error) {
	cfg := &Config{}

	cfg.NoEmail = noEmail
	cfg.NoPayPal = noPayPal
	cfg.NoOIDC = noOIDC
	cfg.NoAI = noAI

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = strings.TrimSpace(os.Getenv("BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.ReadTimeout = parseDurationOrDefault("READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = parseDurationOrDefault("WRITE_TIMEOUT", 30*time.Second)
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", 15*time.Second)

	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "/data/smartnotes.db")
	cfg.MasterKey = os.Getenv("MASTER_KEY")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 30*24*time.Hour)

	cfg.RateLimitConfig = ratelimit.Config{
		FreeRPS:         parseFloat64OrDefault("RATE_LIMIT_FREE_RPS", 10),
		FreeBurst:       parseIntOrDefault("RATE_LIMIT_FREE_BURST", 20),
		PremiumRPS:      parseFloat64OrDefault("RATE_LIMIT_PREMIUM_RPS", 100),
		PremiumBurst:    parseIntOrDefault("RATE_LIMIT_PREMIUM_BURST", 200),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour),
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" && cfg.GoogleClientID != "" {
		cfg.GoogleRedirectURL = cfg.BaseURL + "/auth/google/callback"
	}

	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@smartnotes.app")

	cfg.PayPalClientID = os.Getenv("PAYPAL_CLIENT_ID")
	cfg.PayPalClientSecret = os.Getenv("PAYPAL_CLIENT_SECRET")
	cfg.PayPalBaseURL = getEnvOrDefault("PAYPAL_BASE_URL", paypalSandboxBaseURL)
	cfg.PayPalPlanID = os.Getenv("PAYPAL_PLAN_ID")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present. When mocks
// are not active for a service, that service's secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoOIDC {
		if c.GoogleClientID == "" {
			errs = append(errs, "GOOGLE_CLIENT_ID is required (set env var or use --no-oidc)")
		}
		if c.GoogleClientSecret == "" {
			errs = append(errs, "GOOGLE_CLIENT_SECRET is required (set env var or use --no-oidc)")
		}
	}

	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoPayPal {
		if c.PayPalClientID == "" {
			errs = append(errs, "PAYPAL_CLIENT_ID is required (set env var or use --no-paypal)")
		}
		if c.PayPalClientSecret == "" {
			errs = append(errs, "PAYPAL_CLIENT_SECRET is required (set env var or use --no-paypal)")
		}
		if c.PayPalPlanID == "" {
			errs = append(errs, "PAYPAL_PLAN_ID is required (set env var or use --no-paypal)")
		}
	}

	if !c.NoAI && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required (set env var or use --no-ai)")
	}

	// MasterKey: always required (losing it = database unreadable)
	if c.MasterKey == "" {
		errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32)")
	} else if len(c.MasterKey) != 64 {
		errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	if c.RateLimitConfig.FreeRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_FREE_RPS must be positive")
	}
	if c.RateLimitConfig.FreeBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_FREE_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// RequireSecureCookies returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// PrintStartupSummary prints a human-readable configuration summary to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "smartnotes server starting...")

	if c.NoOIDC {
		fmt.Fprintln(os.Stderr, "  Auth:    Password + Mock OIDC (--no-oidc)")
	} else {
		fmt.Fprintln(os.Stderr, "  Auth:    Password + Google OIDC (real)")
	}
	if c.NoEmail {
		fmt.Fprintln(os.Stderr, "  Email:   Mock (--no-email)")
	} else {
		fmt.Fprintf(os.Stderr, "  Email:   Resend (real, from: %s)\n", c.ResendFromEmail)
	}
	if c.NoPayPal {
		fmt.Fprintln(os.Stderr, "  Billing: Mock PayPal (--no-paypal)")
	} else {
		fmt.Fprintf(os.Stderr, "  Billing: PayPal (real, endpoint: %s)\n", c.PayPalBaseURL)
	}
	if c.NoAI {
		fmt.Fprintln(os.Stderr, "  AI:      Mock summarizer (--no-ai)")
	} else {
		fmt.Fprintln(os.Stderr, "  AI:      OpenAI (real)")
	}
	fmt.Fprintf(os.Stderr, "  DB:      %s\n", c.DatabasePath)
	fmt.Fprintf(os.Stderr, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}
