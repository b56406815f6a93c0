// Package billing drives the PayPal subscription approval handshake and
// reconciles the outcome into the owner's profile. The profile is the
// local record of subscription state; PayPal is the system of record.
package billing

import (
	"context"
	"time"

	"github.com/kuitang/smartnotes/internal/errs"
	"github.com/kuitang/smartnotes/internal/obs"
	"github.com/kuitang/smartnotes/internal/profile"
)

// CanTransition reports whether a subscription status change is legal.
// The lifecycle is none -> pending -> active -> cancelled, and any state
// may be forced to expired by the provider.
func CanTransition(from, to profile.Status) bool {
	if to == profile.StatusExpired {
		return true
	}
	switch from {
	case profile.StatusNone:
		return to == profile.StatusPending
	case profile.StatusPending:
		// An abandoned handshake may be restarted.
		return to == profile.StatusActive || to == profile.StatusPending || to == profile.StatusNone
	case profile.StatusActive:
		return to == profile.StatusCancelled
	case profile.StatusCancelled, profile.StatusExpired:
		// Resubscribing starts a fresh handshake.
		return to == profile.StatusPending
	default:
		return false
	}
}

// Service reconciles PayPal subscription state into profiles.
type Service struct {
	profiles *profile.Service
	paypal   PayPalClient
	planID   string
}

// NewService creates a billing service bound to one PayPal billing plan.
func NewService(profiles *profile.Service, client PayPalClient, planID string) *Service {
	return &Service{
		profiles: profiles,
		paypal:   client,
		planID:   planID,
	}
}

// BeginResult is the outcome of starting the approval handshake.
type BeginResult struct {
	SubscriptionID string `json:"subscription_id"`
	ApprovalURL    string `json:"approval_url"`
}

// Begin starts the subscription approval handshake. It creates the
// subscription at the provider in approval-pending state and records the
// pending status on the profile. The caller redirects the user to the
// returned approval URL.
func (s *Service) Begin(ctx context.Context, userID string) (*BeginResult, error) {
	p, err := s.profiles.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(subStatus(p), profile.StatusPending) {
		return nil, errs.New(errs.FailedPrecondition, "subscription already in progress or active")
	}

	sub, err := s.paypal.CreateSubscription(ctx, s.planID)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "payment provider is unavailable", err)
	}

	pending := profile.StatusPending
	_, err = s.profiles.Update(ctx, userID, profile.Patch{
		SubscriptionStatus:   &pending,
		PayPalSubscriptionID: &sub.ID,
		PayPalPlanID:         &s.planID,
	})
	if err != nil {
		return nil, err
	}

	obs.From(ctx).Info("subscription_begin", "user_id", userID, "subscription_id", sub.ID)
	return &BeginResult{SubscriptionID: sub.ID, ApprovalURL: sub.ApprovalURL}, nil
}

// Complete confirms an approved subscription with the provider and, only
// on confirmation, promotes the profile to premium. A failed confirmation
// leaves the profile exactly as it was.
func (s *Service) Complete(ctx context.Context, userID, subscriptionID string) (*profile.Profile, error) {
	if subscriptionID == "" {
		return nil, errs.New(errs.InvalidArgument, "subscription id is required")
	}

	sub, err := s.paypal.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to confirm subscription", err)
	}
	if sub.Status != ProviderStatusActive {
		return nil, errs.New(errs.FailedPrecondition, "subscription is not active at the provider")
	}

	premium := profile.TierPremium
	active := profile.StatusActive
	updated, err := s.profiles.Update(ctx, userID, profile.Patch{
		Tier:                 &premium,
		SubscriptionStatus:   &active,
		PayPalSubscriptionID: &subscriptionID,
		SubscriptionEndDate:  sub.NextBillingTime,
	})
	if err != nil {
		return nil, err
	}

	obs.From(ctx).Info("subscription_active", "user_id", userID, "subscription_id", subscriptionID)
	return updated, nil
}

// Cancel cancels the profile's subscription at the provider and demotes
// the profile. Access is kept until the already-paid period ends, which is
// why the end date is preserved.
func (s *Service) Cancel(ctx context.Context, userID string) (*profile.Profile, error) {
	p, err := s.profiles.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.PayPalSubscriptionID == "" {
		return nil, errs.New(errs.FailedPrecondition, "no subscription to cancel")
	}
	if !CanTransition(subStatus(p), profile.StatusCancelled) {
		return nil, errs.New(errs.FailedPrecondition, "subscription is not active")
	}

	if err := s.paypal.CancelSubscription(ctx, p.PayPalSubscriptionID, "user requested cancellation"); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to cancel subscription", err)
	}

	free := profile.TierFree
	cancelled := profile.StatusCancelled
	updated, err := s.profiles.Update(ctx, userID, profile.Patch{
		Tier:               &free,
		SubscriptionStatus: &cancelled,
	})
	if err != nil {
		return nil, err
	}

	obs.From(ctx).Info("subscription_cancelled", "user_id", userID, "subscription_id", p.PayPalSubscriptionID)
	return updated, nil
}

// MarkExpired records a provider-driven expiry. Legal from any state.
func (s *Service) MarkExpired(ctx context.Context, userID string, endDate time.Time) (*profile.Profile, error) {
	free := profile.TierFree
	expired := profile.StatusExpired
	end := endDate.UTC()
	return s.profiles.Update(ctx, userID, profile.Patch{
		Tier:                &free,
		SubscriptionStatus:  &expired,
		SubscriptionEndDate: &end,
	})
}

// subStatus maps the absence of a subscription to StatusNone. Profiles are
// created with an "active" account status before any subscription exists,
// so status only means subscription state once a subscription id is set.
func subStatus(p *profile.Profile) profile.Status {
	if p.PayPalSubscriptionID == "" {
		return profile.StatusNone
	}
	return p.SubscriptionStatus
}
