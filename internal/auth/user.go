package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	stdtime "time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/kuitang/smartnotes/internal/db"
)

// Errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Argon2id parameters (OWASP second recommendation: m=19456, t=2, p=1).
// Parameters are embedded in each hash string, so hashes produced under
// different settings still verify correctly.
const (
	argon2Time    = 2
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// Clock abstracts time for testability.
type Clock interface {
	Now() stdtime.Time
}

// realClock implements Clock using the real system time.
type realClock struct{}

func (realClock) Now() stdtime.Time { return stdtime.Now() }

// Identity is the authenticated end-user record supplied by the identity
// layer. Replaced wholesale on sign-in/out; never mutated by callers.
type Identity struct {
	ID        string
	Email     string
	Name      string
	CreatedAt stdtime.Time
}

// UserService handles identity management: registration, credential
// verification, and find-or-create for external OIDC sign-ins.
type UserService struct {
	store *db.Store
	clock Clock
}

// NewUserService creates a new user service.
func NewUserService(store *db.Store) *UserService {
	return &UserService{
		store: store,
		clock: realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// Register creates a new account with email/password and display name.
// Returns ErrAccountExists when the email is already taken.
func (s *UserService) Register(ctx context.Context, emailAddr, password, fullName string) (*Identity, error) {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if emailAddr == "" {
		return nil, ErrInvalidCredentials
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := generateUserID(emailAddr)
	now := s.clock.Now()
	err = s.store.InsertUser(ctx, db.UserRow{
		UserID:       userID,
		Email:        emailAddr,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: sql.NullString{String: passwordHash, Valid: true},
		CreatedAt:    now.Unix(),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return &Identity{
		ID:        userID,
		Email:     emailAddr,
		Name:      strings.TrimSpace(fullName),
		CreatedAt: now,
	}, nil
}

// VerifyLogin verifies email/password credentials for an existing account.
// Returns ErrInvalidCredentials if the user doesn't exist or the password
// is wrong.
func (s *UserService) VerifyLogin(ctx context.Context, emailAddr, password string) (*Identity, error) {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))

	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	// Accounts created via OIDC have no password hash.
	if !user.PasswordHash.Valid || user.PasswordHash.String == "" {
		return nil, ErrInvalidCredentials
	}

	if !VerifyPassword(password, user.PasswordHash.String) {
		return nil, ErrInvalidCredentials
	}

	return identityFromRow(user), nil
}

// FindOrCreateByOIDC finds or creates a user account for an external OIDC
// sign-in. Auto-creates the account with a NULL password hash and links the
// provider subject.
func (s *UserService) FindOrCreateByOIDC(ctx context.Context, claims *Claims) (*Identity, error) {
	emailAddr := strings.TrimSpace(strings.ToLower(claims.Email))
	if emailAddr == "" {
		return nil, fmt.Errorf("oidc claims missing email")
	}

	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err == nil {
		if claims.Sub != "" && (!user.GoogleSub.Valid || user.GoogleSub.String == "") {
			if linkErr := s.store.LinkGoogleSub(ctx, user.UserID, claims.Sub); linkErr != nil {
				return nil, fmt.Errorf("link google subject: %w", linkErr)
			}
		}
		return identityFromRow(user), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account: %w", err)
	}

	userID := generateUserID(emailAddr)
	now := s.clock.Now()
	err = s.store.InsertUser(ctx, db.UserRow{
		UserID:    userID,
		Email:     emailAddr,
		FullName:  strings.TrimSpace(claims.Name),
		GoogleSub: sql.NullString{String: claims.Sub, Valid: claims.Sub != ""},
		CreatedAt: now.Unix(),
	})
	if err != nil {
		// Raced with a concurrent sign-in for the same email.
		if db.IsUniqueViolation(err) {
			user, err = s.store.GetUserByEmail(ctx, emailAddr)
			if err != nil {
				return nil, fmt.Errorf("get account after create race: %w", err)
			}
			return identityFromRow(user), nil
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return &Identity{
		ID:        userID,
		Email:     emailAddr,
		Name:      strings.TrimSpace(claims.Name),
		CreatedAt: now,
	}, nil
}

// GetIdentity returns the identity for a user id.
// Returns ErrUserNotFound when the account does not exist.
func (s *UserService) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return identityFromRow(user), nil
}

func identityFromRow(row db.UserRow) *Identity {
	return &Identity{
		ID:        row.UserID,
		Email:     row.Email,
		Name:      row.FullName,
		CreatedAt: stdtime.Unix(row.CreatedAt, 0),
	}
}

// ValidatePasswordStrength checks if a password meets minimum requirements.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// Encode as: $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argon2Memory, argon2Time, argon2Threads, encodedSalt, encodedHash), nil
}

// VerifyPassword checks if a password matches a hash.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	if parts[1] != "argon2id" {
		return false
	}

	if parts[2] != "v=19" {
		return false
	}

	var memory, time uint32
	var threads uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads)
	if err != nil {
		return false
	}

	saltBytes, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	hashBytes, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	hashLen := len(hashBytes)
	if hashLen <= 0 || hashLen > argon2KeyLen*2 {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), saltBytes, time, memory, threads, uint32(hashLen))

	return subtle.ConstantTimeCompare(hashBytes, computedHash) == 1
}

// Helper functions

func generateUserID(email string) string {
	return "user-" + uuid.NewSHA1(uuid.NameSpaceDNS, []byte(email)).String()
}
