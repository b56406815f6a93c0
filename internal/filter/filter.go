// Package filter implements in-memory search and tag filtering over a
// user's note collection, plus the tag facet counts shown alongside the
// results. Filtering is pure: it never reorders or mutates its input.
package filter

import (
	"sort"
	"strings"

	"github.com/kuitang/smartnotes/internal/notes"
)

// Query is a filter over a note collection. Zero value matches everything.
type Query struct {
	// Search matches case-insensitively as a substring of title or content.
	Search string
	// Tag, when non-empty, requires an exact match against a note's
	// normalized tags.
	Tag string
}

// IsZero reports whether the query matches all notes.
func (q Query) IsZero() bool {
	return strings.TrimSpace(q.Search) == "" && q.Tag == ""
}

// Matches reports whether a single note satisfies the query. Both the
// search term and the tag must match when both are set.
func (q Query) Matches(n notes.Note) bool {
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		title := strings.ToLower(n.Title)
		content := strings.ToLower(n.Content)
		if !strings.Contains(title, term) && !strings.Contains(content, term) {
			return false
		}
	}
	if q.Tag != "" && !n.HasTag(q.Tag) {
		return false
	}
	return true
}

// Apply returns the notes matching the query, preserving the input order.
// The input slice is never modified.
func Apply(all []notes.Note, q Query) []notes.Note {
	if q.IsZero() {
		out := make([]notes.Note, len(all))
		copy(out, all)
		return out
	}
	out := make([]notes.Note, 0, len(all))
	for _, n := range all {
		if q.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// Facet is one tag with the number of notes carrying it.
type Facet struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Facets computes per-tag note counts over the full collection, sorted by
// descending count and then tag name so the output is stable. A note
// carrying a tag twice still counts once, since stored tags are deduplicated.
func Facets(all []notes.Note) []Facet {
	counts := make(map[string]int)
	for _, n := range all {
		for _, tag := range n.Tags {
			counts[tag]++
		}
	}

	facets := make([]Facet, 0, len(counts))
	for tag, count := range counts {
		facets = append(facets, Facet{Tag: tag, Count: count})
	}
	sort.Slice(facets, func(i, j int) bool {
		if facets[i].Count != facets[j].Count {
			return facets[i].Count > facets[j].Count
		}
		return facets[i].Tag < facets[j].Tag
	})
	return facets
}

// Tags returns the sorted union of all tags across the collection.
func Tags(all []notes.Note) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, n := range all {
		for _, tag := range n.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}
