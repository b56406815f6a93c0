package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/kuitang/smartnotes/internal/logutil"
	"github.com/kuitang/smartnotes/internal/obs"
)

// Provider-side subscription statuses we act on.
const (
	ProviderStatusApprovalPending = "APPROVAL_PENDING"
	ProviderStatusActive          = "ACTIVE"
	ProviderStatusCancelled       = "CANCELLED"
	ProviderStatusExpired         = "EXPIRED"
)

// Subscription is the provider's view of one subscription.
type Subscription struct {
	ID              string
	Status          string
	PlanID          string
	ApprovalURL     string
	NextBillingTime *time.Time
}

// PayPalClient is the provider boundary. The real implementation talks to
// the PayPal REST API; tests use MockPayPalClient.
type PayPalClient interface {
	CreateSubscription(ctx context.Context, planID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	IsMock() bool
}

// PayPalConfig holds PayPal REST API credentials.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL is https://api-m.paypal.com for live or
	// https://api-m.sandbox.paypal.com for sandbox.
	BaseURL   string
	ReturnURL string
	CancelURL string
}

// PayPalREST implements PayPalClient against the PayPal REST API, using a
// client-credentials OAuth2 token source that refreshes itself.
type PayPalREST struct {
	config PayPalConfig
	http   *http.Client
}

// NewPayPalREST creates a real PayPal client. The returned client holds a
// self-refreshing OAuth2 access token.
func NewPayPalREST(ctx context.Context, cfg PayPalConfig) *PayPalREST {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/v1/oauth2/token",
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = 15 * time.Second
	return &PayPalREST{config: cfg, http: httpClient}
}

// IsMock returns false for the real client.
func (c *PayPalREST) IsMock() bool { return false }

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalSubscription struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlanID      string       `json:"plan_id"`
	Links       []paypalLink `json:"links"`
	BillingInfo *struct {
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

func (p paypalSubscription) toSubscription() *Subscription {
	sub := &Subscription{
		ID:     p.ID,
		Status: p.Status,
		PlanID: p.PlanID,
	}
	for _, link := range p.Links {
		if link.Rel == "approve" {
			sub.ApprovalURL = link.Href
		}
	}
	if p.BillingInfo != nil && p.BillingInfo.NextBillingTime != "" {
		if t, err := time.Parse(time.RFC3339, p.BillingInfo.NextBillingTime); err == nil {
			t = t.UTC()
			sub.NextBillingTime = &t
		}
	}
	return sub
}

// CreateSubscription creates a subscription in approval-pending state and
// returns the approval redirect target.
func (c *PayPalREST) CreateSubscription(ctx context.Context, planID string) (*Subscription, error) {
	body := map[string]any{
		"plan_id": planID,
		"application_context": map[string]any{
			"return_url": c.config.ReturnURL,
			"cancel_url": c.config.CancelURL,
		},
	}

	var resp paypalSubscription
	if err := c.do(ctx, http.MethodPost, "/v1/billing/subscriptions", body, &resp); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return resp.toSubscription(), nil
}

// GetSubscription fetches the current provider-side subscription state.
func (c *PayPalREST) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var resp paypalSubscription
	path := "/v1/billing/subscriptions/" + subscriptionID
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return resp.toSubscription(), nil
}

// CancelSubscription cancels a subscription. PayPal returns 204 on success.
func (c *PayPalREST) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	body := map[string]any{"reason": reason}
	path := "/v1/billing/subscriptions/" + subscriptionID + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func (c *PayPalREST) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		obs.Pkg("billing").Warn("paypal_error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", logutil.TruncateForLog(string(respBody), 500))
		return fmt.Errorf("paypal %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
