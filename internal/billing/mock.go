package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/smartnotes/internal/obs"
)

// MockPayPalClient implements PayPalClient in-memory for test mode and
// local development without provider credentials.
type MockPayPalClient struct {
	mu   sync.Mutex
	next int
	subs map[string]*Subscription

	// FailCreate, FailGet, and FailCancel force the corresponding call to
	// error, for exercising failure paths.
	FailCreate bool
	FailGet    bool
	FailCancel bool
}

// NewMockPayPalClient creates an empty mock provider.
func NewMockPayPalClient() *MockPayPalClient {
	obs.Pkg("billing").Info("using mock paypal client")
	return &MockPayPalClient{subs: make(map[string]*Subscription)}
}

// IsMock returns true for the mock client.
func (m *MockPayPalClient) IsMock() bool { return true }

// CreateSubscription returns a new approval-pending subscription.
func (m *MockPayPalClient) CreateSubscription(ctx context.Context, planID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate {
		return nil, fmt.Errorf("mock paypal: create failed")
	}

	m.next++
	id := fmt.Sprintf("I-MOCK%06d", m.next)
	sub := &Subscription{
		ID:          id,
		Status:      ProviderStatusApprovalPending,
		PlanID:      planID,
		ApprovalURL: "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=" + id,
	}
	m.subs[id] = sub
	out := *sub
	return &out, nil
}

// GetSubscription returns the stored subscription state.
func (m *MockPayPalClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet {
		return nil, fmt.Errorf("mock paypal: get failed")
	}

	sub, ok := m.subs[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("mock paypal: subscription %s not found", subscriptionID)
	}
	out := *sub
	return &out, nil
}

// CancelSubscription marks the subscription cancelled.
func (m *MockPayPalClient) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCancel {
		return fmt.Errorf("mock paypal: cancel failed")
	}

	sub, ok := m.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("mock paypal: subscription %s not found", subscriptionID)
	}
	sub.Status = ProviderStatusCancelled
	return nil
}

// Approve simulates the user approving the handshake on the provider's
// site, moving the subscription to active. Test helper.
func (m *MockPayPalClient) Approve(subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("mock paypal: subscription %s not found", subscriptionID)
	}
	sub.Status = ProviderStatusActive
	next := time.Now().UTC().AddDate(0, 1, 0)
	sub.NextBillingTime = &next
	return nil
}
