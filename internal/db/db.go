package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// MaxOpenConns is the maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns = 2
)

// Store wraps the sql.DB connection and provides typed queries over the
// users, sessions, profiles, and notes tables.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the encrypted application database at path.
// keyHex is the 64-hex-character SQLCipher key.
func Open(path, keyHex string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, keyHex)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := sqlDB.Exec(Schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

// NewFromSQL wraps an existing sql.DB as a Store. The schema must already
// be applied. Used by testdb.
func NewFromSQL(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB}
}

// DB returns the underlying sql.DB for direct access when needed.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint && serr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	// The driver occasionally surfaces constraint errors as plain strings
	// (e.g. through tx rollback paths).
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// UserRow is an identity-provider user record.
type UserRow struct {
	UserID       string
	Email        string
	FullName     string
	PasswordHash sql.NullString
	GoogleSub    sql.NullString
	CreatedAt    int64
}

// InsertUser inserts a new user row. A duplicate email surfaces as a
// unique-constraint error (see IsUniqueViolation).
func (s *Store) InsertUser(ctx context.Context, row UserRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, full_name, password_hash, google_sub, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.UserID, row.Email, row.FullName, row.PasswordHash, row.GoogleSub, row.CreatedAt)
	return err
}

// GetUserByEmail returns the user with the given email, or sql.ErrNoRows.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	var row UserRow
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, full_name, password_hash, google_sub, created_at
		 FROM users WHERE email = ?`, email).
		Scan(&row.UserID, &row.Email, &row.FullName, &row.PasswordHash, &row.GoogleSub, &row.CreatedAt)
	return row, err
}

// GetUserByID returns the user with the given id, or sql.ErrNoRows.
func (s *Store) GetUserByID(ctx context.Context, userID string) (UserRow, error) {
	var row UserRow
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, full_name, password_hash, google_sub, created_at
		 FROM users WHERE user_id = ?`, userID).
		Scan(&row.UserID, &row.Email, &row.FullName, &row.PasswordHash, &row.GoogleSub, &row.CreatedAt)
	return row, err
}

// LinkGoogleSub records the Google OIDC subject for an existing user.
func (s *Store) LinkGoogleSub(ctx context.Context, userID, googleSub string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET google_sub = ? WHERE user_id = ?`, googleSub, userID)
	return err
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// UpsertSession stores or refreshes a session.
func (s *Store) UpsertSession(ctx context.Context, sessionID, userID string, expiresAt, createdAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at`,
		sessionID, userID, expiresAt, createdAt)
	return err
}

// GetValidSession returns the user id for an unexpired session, or sql.ErrNoRows.
func (s *Store) GetValidSession(ctx context.Context, sessionID string, now int64) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE session_id = ? AND expires_at > ?`,
		sessionID, now).Scan(&userID)
	return userID, err
}

// DeleteSession removes a single session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteSessionsByUserID removes every session belonging to a user.
func (s *Store) DeleteSessionsByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	return err
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// ProfileRow mirrors the profiles table.
type ProfileRow struct {
	ID                   int64
	UserID               string
	Email                string
	FullName             string
	SubscriptionTier     string
	NotesCount           int64
	PayPalSubscriptionID sql.NullString
	PayPalPlanID         sql.NullString
	SubscriptionStatus   sql.NullString
	SubscriptionEndDate  sql.NullInt64
	CreatedAt            int64
	UpdatedAt            int64
}

const profileColumns = `id, user_id, email, full_name, subscription_tier, notes_count,
	paypal_subscription_id, paypal_plan_id, subscription_status, subscription_end_date,
	created_at, updated_at`

func scanProfile(scan func(dest ...any) error) (ProfileRow, error) {
	var row ProfileRow
	err := scan(&row.ID, &row.UserID, &row.Email, &row.FullName, &row.SubscriptionTier,
		&row.NotesCount, &row.PayPalSubscriptionID, &row.PayPalPlanID,
		&row.SubscriptionStatus, &row.SubscriptionEndDate, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

// InsertProfile inserts a new profile and returns its numeric id.
// A second profile for the same user surfaces as a unique-constraint error.
func (s *Store) InsertProfile(ctx context.Context, row ProfileRow) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, email, full_name, subscription_tier, notes_count,
		    subscription_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.UserID, row.Email, row.FullName, row.SubscriptionTier, row.NotesCount,
		row.SubscriptionStatus, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetProfileByUserID returns the profile for a user, or sql.ErrNoRows.
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (ProfileRow, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = ?`
	return scanProfile(s.db.QueryRowContext(ctx, query, userID).Scan)
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	Email                *string
	FullName             *string
	SubscriptionTier     *string
	NotesCount           *int64
	PayPalSubscriptionID *string
	PayPalPlanID         *string
	SubscriptionStatus   *string
	SubscriptionEndDate  *int64
}

// UpdateProfile applies a partial update to a user's profile.
// Returns sql.ErrNoRows when no profile exists for the user.
func (s *Store) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch, updatedAt int64) error {
	sets := make([]string, 0, 9)
	args := make([]any, 0, 10)

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.SubscriptionTier != nil {
		add("subscription_tier", *patch.SubscriptionTier)
	}
	if patch.NotesCount != nil {
		add("notes_count", *patch.NotesCount)
	}
	if patch.PayPalSubscriptionID != nil {
		add("paypal_subscription_id", *patch.PayPalSubscriptionID)
	}
	if patch.PayPalPlanID != nil {
		add("paypal_plan_id", *patch.PayPalPlanID)
	}
	if patch.SubscriptionStatus != nil {
		add("subscription_status", *patch.SubscriptionStatus)
	}
	if patch.SubscriptionEndDate != nil {
		add("subscription_end_date", *patch.SubscriptionEndDate)
	}
	add("updated_at", updatedAt)

	args = append(args, userID)
	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE user_id = ?`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Notes
// ---------------------------------------------------------------------------

// NoteRow mirrors the notes table. Tags is a JSON array of strings.
type NoteRow struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Tags      string
	CreatedAt int64
	UpdatedAt int64
}

const noteColumns = `id, user_id, title, content, tags, created_at, updated_at`

func scanNote(scan func(dest ...any) error) (NoteRow, error) {
	var row NoteRow
	err := scan(&row.ID, &row.UserID, &row.Title, &row.Content, &row.Tags, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

// InsertNoteWithCount inserts a note and increments the owner's cached
// notes_count in a single transaction, so the counter cannot drift from
// the true collection.
func (s *Store) InsertNoteWithCount(ctx context.Context, row NoteRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert note tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.Title, row.Content, row.Tags, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET notes_count = notes_count + 1, updated_at = ? WHERE user_id = ?`,
		row.UpdatedAt, row.UserID)
	if err != nil {
		return fmt.Errorf("increment notes_count: %w", err)
	}

	return tx.Commit()
}

// GetNoteByID returns a note scoped to its owner, or sql.ErrNoRows.
func (s *Store) GetNoteByID(ctx context.Context, userID, id string) (NoteRow, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = ? AND user_id = ?`
	return scanNote(s.db.QueryRowContext(ctx, query, id, userID).Scan)
}

// ListNotesByUser returns every note owned by userID, most recently
// modified first.
func (s *Store) ListNotesByUser(ctx context.Context, userID string) ([]NoteRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ?
		 ORDER BY updated_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []NoteRow
	for rows.Next() {
		row, err := scanNote(rows.Scan)
		if err != nil {
			return nil, err
		}
		notes = append(notes, row)
	}
	return notes, rows.Err()
}

// UpdateNote updates title, content, tags, and updated_at for a note scoped
// to its owner. Returns sql.ErrNoRows when the note does not exist.
func (s *Store) UpdateNote(ctx context.Context, userID, id, title, content, tags string, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		title, content, tags, updatedAt, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteNoteWithCount deletes a note and decrements the owner's cached
// notes_count (floored at zero) in a single transaction.
// Returns sql.ErrNoRows when the note does not exist for that owner.
func (s *Store) DeleteNoteWithCount(ctx context.Context, userID, id string, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete note tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET notes_count = MAX(notes_count - 1, 0), updated_at = ? WHERE user_id = ?`,
		now, userID)
	if err != nil {
		return fmt.Errorf("decrement notes_count: %w", err)
	}

	return tx.Commit()
}

// CountNotesByUser returns the true number of notes owned by userID,
// independent of the cached profiles.notes_count.
func (s *Store) CountNotesByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}
