package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/smartnotes/internal/testdb"
)

func setupUsers(t *testing.T) *UserService {
	t.Helper()
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewUserService(store)
}

func TestRegister_AndVerifyLogin(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	created, err := users.Register(ctx, "alice@example.com", "correct horse battery", "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a non-empty user ID")
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", created.Email)
	}

	verified, err := users.VerifyLogin(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if verified.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, verified.ID)
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	created, err := users.Register(ctx, "  Bob@Example.COM  ", "password123", "Bob")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if created.Email != "bob@example.com" {
		t.Fatalf("expected lowercased email, got %q", created.Email)
	}

	// Sign-in works regardless of the casing the user typed.
	if _, err := users.VerifyLogin(ctx, "BOB@example.com", "password123"); err != nil {
		t.Fatalf("VerifyLogin with different casing failed: %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	if _, err := users.Register(ctx, "dup@example.com", "password123", "First"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	_, err := users.Register(ctx, "dup@example.com", "differentpass", "Second")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)

	_, err := users.Register(context.Background(), "weak@example.com", "short", "Weak")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegister_EmptyEmail(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)

	_, err := users.Register(context.Background(), "   ", "password123", "Nobody")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyLogin_WrongPassword(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	if _, err := users.Register(ctx, "carol@example.com", "rightpassword", "Carol"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err := users.VerifyLogin(ctx, "carol@example.com", "wrongpassword")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyLogin_UnknownUser(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)

	_, err := users.VerifyLogin(context.Background(), "ghost@example.com", "whatever12")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyLogin_OIDCOnlyAccountHasNoPassword(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	_, err := users.FindOrCreateByOIDC(ctx, &Claims{
		Sub:           "google-sub-1",
		Email:         "oidc-only@example.com",
		Name:          "OIDC User",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("FindOrCreateByOIDC failed: %v", err)
	}

	// The account exists but has no password hash; any password is wrong.
	_, err = users.VerifyLogin(ctx, "oidc-only@example.com", "password123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestFindOrCreateByOIDC_CreatesThenFinds(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	claims := &Claims{Sub: "google-sub-2", Email: "dave@example.com", Name: "Dave", EmailVerified: true}

	first, err := users.FindOrCreateByOIDC(ctx, claims)
	if err != nil {
		t.Fatalf("first FindOrCreateByOIDC failed: %v", err)
	}
	second, err := users.FindOrCreateByOIDC(ctx, claims)
	if err != nil {
		t.Fatalf("second FindOrCreateByOIDC failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same account, got %s and %s", first.ID, second.ID)
	}
}

func TestFindOrCreateByOIDC_LinksExistingPasswordAccount(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)
	ctx := context.Background()

	registered, err := users.Register(ctx, "erin@example.com", "password123", "Erin")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	linked, err := users.FindOrCreateByOIDC(ctx, &Claims{
		Sub:   "google-sub-3",
		Email: "Erin@Example.com",
		Name:  "Erin G",
	})
	if err != nil {
		t.Fatalf("FindOrCreateByOIDC failed: %v", err)
	}
	if linked.ID != registered.ID {
		t.Fatalf("expected OIDC sign-in to resolve to the existing account %s, got %s", registered.ID, linked.ID)
	}

	row, err := users.store.GetUserByEmail(ctx, "erin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if !row.GoogleSub.Valid || row.GoogleSub.String != "google-sub-3" {
		t.Fatalf("expected google subject to be linked, got %+v", row.GoogleSub)
	}

	// Password sign-in still works after linking.
	if _, err := users.VerifyLogin(ctx, "erin@example.com", "password123"); err != nil {
		t.Fatalf("VerifyLogin after linking failed: %v", err)
	}
}

func TestFindOrCreateByOIDC_MissingEmail(t *testing.T) {
	t.Parallel()
	users := setupUsers(t)

	_, err := users.FindOrCreateByOIDC(context.Background(), &Claims{Sub: "google-sub-4"})
	if err == nil {
		t.Fatal("expected an error for claims without an email")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not a hash", "hunter2"},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA"},
		{"bad salt encoding", "$argon2id$v=19$m=19456,t=2,p=1$!!!!$aGFzaA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifyPassword("password123", tc.hash) {
				t.Fatalf("malformed hash %q verified", tc.hash)
			}
		})
	}
}

func testPasswordHash_Roundtrip_Properties(t *rapid.T) {
	password := rapid.StringN(1, 64, -1).Draw(t, "password")

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}
	if !VerifyPassword(password, hash) {
		t.Fatal("hash did not verify its own password")
	}

	other := rapid.StringN(1, 64, -1).Draw(t, "other")
	if other != password && VerifyPassword(other, hash) {
		t.Fatalf("hash of %q verified unrelated password %q", password, other)
	}
}

func TestPasswordHash_Roundtrip_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testPasswordHash_Roundtrip_Properties)
}

func FuzzPasswordHash_Roundtrip_Properties(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testPasswordHash_Roundtrip_Properties))
}

func TestHashPassword_SaltedHashesDiffer(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	second, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password should use different salts")
	}
	if !VerifyPassword("password123", first) || !VerifyPassword("password123", second) {
		t.Fatal("both salted hashes should verify")
	}
}
