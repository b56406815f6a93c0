package notes

import (
	"time"
)

// DefaultTitle is substituted when a note is saved with a blank title.
const DefaultTitle = "Untitled"

// FreeTierNoteLimit is the free-tier cap, enforced at creation time only.
const FreeTierNoteLimit = 10

// Note represents a user's note with metadata. Tags are stored normalized
// (trimmed, lower-cased, deduplicated) in insertion order.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTag reports whether the note carries the given (already normalized) tag.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CreateNoteParams contains parameters for creating a note.
type CreateNoteParams struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// UpdateNoteParams contains parameters for updating a note.
// Fields are optional (pointer to distinguish empty value from omitted).
type UpdateNoteParams struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}
