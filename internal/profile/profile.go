// Package profile implements the per-identity application profile record:
// subscription tier, the cached note counter, and PayPal reconciliation
// state. Profiles are created lazily on first access after sign-in.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/kuitang/smartnotes/internal/auth"
	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/errs"
	"github.com/kuitang/smartnotes/internal/obs"
)

// Tier is a subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Status is a subscription lifecycle status.
type Status string

const (
	StatusNone      Status = ""
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Profile is the application's per-identity extension record.
type Profile struct {
	ID                   int64      `json:"id"`
	UserID               string     `json:"user_id"`
	Email                string     `json:"email"`
	FullName             string     `json:"full_name"`
	Tier                 Tier       `json:"subscription_tier"`
	NotesCount           int        `json:"notes_count"`
	PayPalSubscriptionID string     `json:"paypal_subscription_id,omitempty"`
	PayPalPlanID         string     `json:"paypal_plan_id,omitempty"`
	SubscriptionStatus   Status     `json:"subscription_status,omitempty"`
	SubscriptionEndDate  *time.Time `json:"subscription_end_date,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsPremium reports whether the profile is on the premium tier.
func (p *Profile) IsPremium() bool {
	return p.Tier == TierPremium
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	Email                *string
	FullName             *string
	Tier                 *Tier
	NotesCount           *int
	PayPalSubscriptionID *string
	PayPalPlanID         *string
	SubscriptionStatus   *Status
	SubscriptionEndDate  *time.Time
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service loads, lazily creates, and updates profiles. It keeps a small
// read-through cache which is cleared whenever the owning session changes,
// so sign-out always drops derived profile state.
type Service struct {
	store *db.Store
	clock Clock

	mu    sync.RWMutex
	cache map[string]Profile
}

// NewService creates a profile service.
func NewService(store *db.Store) *Service {
	return &Service{
		store: store,
		clock: realClock{},
		cache: make(map[string]Profile),
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *Service) SetClock(c Clock) {
	s.clock = c
}

// AttachTo subscribes the service to session change notifications so the
// cached profile for a user is cleared on sign-in and sign-out.
func (s *Service) AttachTo(sessions *auth.SessionService) {
	sessions.Subscribe(func(ev auth.Event) {
		s.Invalidate(ev.UserID)
	})
}

// Invalidate drops any cached profile for the user.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

// Cached reports whether a profile for the user is currently cached.
// Exposed for tests of the session-teardown contract.
func (s *Service) Cached(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[userID]
	return ok
}

// Load fetches the profile for a user. A definitive miss is reported as a
// distinct errs.NotFound; any other storage failure is errs.Unavailable, so
// callers never mistake a transient error for "no profile yet".
func (s *Service) Load(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	if cached, ok := s.cache[userID]; ok {
		s.mu.RUnlock()
		return &cached, nil
	}
	s.mu.RUnlock()

	row, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "profile not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to load profile", err)
	}

	p := fromRow(row)
	s.mu.Lock()
	s.cache[userID] = p
	s.mu.Unlock()
	return &p, nil
}

// Create inserts a new profile with tier=free, notes_count=0, and an active
// status. A concurrent creator winning the race surfaces as
// errs.FailedPrecondition; callers should treat that as recoverable and
// retry Load.
func (s *Service) Create(ctx context.Context, userID, email, fullName string) (*Profile, error) {
	now := s.clock.Now().Unix()
	row := db.ProfileRow{
		UserID:             userID,
		Email:              email,
		FullName:           fullName,
		SubscriptionTier:   string(TierFree),
		NotesCount:         0,
		SubscriptionStatus: sql.NullString{String: string(StatusActive), Valid: true},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	id, err := s.store.InsertProfile(ctx, row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errs.Wrap(errs.FailedPrecondition, "profile already exists", err)
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to create profile", err)
	}

	row.ID = id
	p := fromRow(row)
	s.mu.Lock()
	s.cache[userID] = p
	s.mu.Unlock()

	obs.From(ctx).Info("profile_created", "user_id", userID, "tier", TierFree)
	return &p, nil
}

// Ensure reconciles the profile for an identity: load it, and on a true
// not-found create it, provided the identity carries both an email and a
// display name. Transient load errors are surfaced, never treated as a
// creation trigger. A lost creation race falls back to one more Load.
func (s *Service) Ensure(ctx context.Context, identity *auth.Identity) (*Profile, error) {
	p, err := s.Load(ctx, identity.ID)
	if err == nil {
		return p, nil
	}
	if !errs.IsCode(err, errs.NotFound) {
		return nil, err
	}

	if identity.Email == "" || identity.Name == "" {
		return nil, errs.New(errs.NotFound, "profile not found and identity is incomplete")
	}

	p, err = s.Create(ctx, identity.ID, identity.Email, identity.Name)
	if err == nil {
		return p, nil
	}
	if errs.IsCode(err, errs.FailedPrecondition) {
		return s.Load(ctx, identity.ID)
	}
	return nil, err
}

// Update applies a partial update scoped by the stable user id and returns
// the fresh profile. The cache entry is dropped first so a concurrent Load
// never resurrects stale state.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (*Profile, error) {
	s.Invalidate(userID)

	err := s.store.UpdateProfile(ctx, userID, toDBPatch(patch), s.clock.Now().Unix())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "profile not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to update profile", err)
	}

	return s.Load(ctx, userID)
}

// Reload bypasses the cache and fetches the profile from storage.
func (s *Service) Reload(ctx context.Context, userID string) (*Profile, error) {
	s.Invalidate(userID)
	return s.Load(ctx, userID)
}

func toDBPatch(patch Patch) db.ProfilePatch {
	out := db.ProfilePatch{
		Email:    patch.Email,
		FullName: patch.FullName,
	}
	if patch.Tier != nil {
		tier := string(*patch.Tier)
		out.SubscriptionTier = &tier
	}
	if patch.NotesCount != nil {
		count := int64(*patch.NotesCount)
		out.NotesCount = &count
	}
	out.PayPalSubscriptionID = patch.PayPalSubscriptionID
	out.PayPalPlanID = patch.PayPalPlanID
	if patch.SubscriptionStatus != nil {
		status := string(*patch.SubscriptionStatus)
		out.SubscriptionStatus = &status
	}
	if patch.SubscriptionEndDate != nil {
		end := patch.SubscriptionEndDate.Unix()
		out.SubscriptionEndDate = &end
	}
	return out
}

func fromRow(row db.ProfileRow) Profile {
	p := Profile{
		ID:         row.ID,
		UserID:     row.UserID,
		Email:      row.Email,
		FullName:   row.FullName,
		Tier:       Tier(row.SubscriptionTier),
		NotesCount: int(row.NotesCount),
		CreatedAt:  time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt:  time.Unix(row.UpdatedAt, 0).UTC(),
	}
	if row.PayPalSubscriptionID.Valid {
		p.PayPalSubscriptionID = row.PayPalSubscriptionID.String
	}
	if row.PayPalPlanID.Valid {
		p.PayPalPlanID = row.PayPalPlanID.String
	}
	if row.SubscriptionStatus.Valid {
		p.SubscriptionStatus = Status(row.SubscriptionStatus.String)
	}
	if row.SubscriptionEndDate.Valid {
		end := time.Unix(row.SubscriptionEndDate.Int64, 0).UTC()
		p.SubscriptionEndDate = &end
	}
	return p
}
