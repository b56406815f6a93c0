package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/smartnotes/internal/db"
	"github.com/kuitang/smartnotes/internal/errs"
	"github.com/kuitang/smartnotes/internal/obs"
	"github.com/kuitang/smartnotes/internal/profile"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service handles note CRUD scoped to the owning identity. Creation is
// gated by the free-tier quota read from the owner's profile; every note
// mutation and its counter adjustment commit in one storage transaction.
type Service struct {
	store    *db.Store
	profiles *profile.Service
	clock    Clock
}

// NewService creates a new notes service.
func NewService(store *db.Store, profiles *profile.Service) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		clock:    realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *Service) SetClock(c Clock) {
	s.clock = c
}

// List returns all notes owned by userID, most recently modified first.
// The whole set is loaded; there is no pagination.
func (s *Service) List(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.store.ListNotesByUser(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to load notes", err)
	}

	notes := make([]Note, 0, len(rows))
	for _, row := range rows {
		note, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// Get returns a single note scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, id string) (*Note, error) {
	row, err := s.store.GetNoteByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "note not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to read note", err)
	}
	note, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// Create inserts a new note for userID. Free-tier owners at or over the
// note limit are rejected before any row is written. A blank title becomes
// DefaultTitle; tags are normalized. The insert and the owner's
// notes_count increment commit atomically.
func (s *Service) Create(ctx context.Context, userID string, params CreateNoteParams) (*Note, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" && strings.TrimSpace(params.Content) == "" {
		return nil, errs.New(errs.InvalidArgument, "please add a title or content")
	}
	if title == "" {
		title = DefaultTitle
	}

	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	tags := NormalizeTags(params.Tags)
	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	now := s.clock.Now().UTC()
	row := db.NoteRow{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   params.Content,
		Tags:      tagsJSON,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}

	if err := s.store.InsertNoteWithCount(ctx, row); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to save note", err)
	}
	s.profiles.Invalidate(userID)

	obs.From(ctx).Info("note_created", "user_id", userID, "note_id", row.ID, "tags", len(tags))
	return &Note{
		ID:        row.ID,
		UserID:    userID,
		Title:     title,
		Content:   params.Content,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update edits a note in place and stamps updated_at. Editing is always
// allowed regardless of tier; there is no quota check here.
func (s *Service) Update(ctx context.Context, userID, id string, params UpdateNoteParams) (*Note, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	title := existing.Title
	content := existing.Content
	tags := existing.Tags
	if params.Title != nil {
		title = strings.TrimSpace(*params.Title)
		if title == "" {
			title = DefaultTitle
		}
	}
	if params.Content != nil {
		content = *params.Content
	}
	if params.Tags != nil {
		tags = NormalizeTags(*params.Tags)
	}

	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	now := s.clock.Now().UTC()
	err = s.store.UpdateNote(ctx, userID, id, title, content, tagsJSON, now.Unix())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "note not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to update note", err)
	}

	return &Note{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Content:   content,
		Tags:      tags,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
	}, nil
}

// Delete removes a note. The delete and the owner's notes_count decrement
// (floored at zero) commit atomically.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.store.DeleteNoteWithCount(ctx, userID, id, s.clock.Now().UTC().Unix())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.NotFound, "note not found")
		}
		return errs.Wrap(errs.Unavailable, "failed to delete note", err)
	}
	s.profiles.Invalidate(userID)

	obs.From(ctx).Info("note_deleted", "user_id", userID, "note_id", id)
	return nil
}

// checkQuota rejects creation when the owner is on the free tier with the
// cached note counter at or over the limit. An owner with no profile yet is
// not quota-checked; a transient profile load failure blocks the create
// rather than silently waiving the quota.
func (s *Service) checkQuota(ctx context.Context, userID string) error {
	prof, err := s.profiles.Load(ctx, userID)
	if err != nil {
		if errs.IsCode(err, errs.NotFound) {
			return nil
		}
		return err
	}
	if !prof.IsPremium() && prof.NotesCount >= FreeTierNoteLimit {
		return errs.New(errs.ResourceExhausted,
			"free tier limit reached, upgrade to premium for unlimited notes")
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTags(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func fromRow(row db.NoteRow) (Note, error) {
	tags, err := decodeTags(row.Tags)
	if err != nil {
		return Note{}, errs.Wrap(errs.Internal, "corrupt tag data", err)
	}
	return Note{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Content:   row.Content,
		Tags:      tags,
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(row.UpdatedAt, 0).UTC(),
	}, nil
}
