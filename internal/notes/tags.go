package notes

import "strings"

// NormalizeTag trims and lower-cases a raw tag. Returns "" for blank input.
func NormalizeTag(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// AppendTag adds a single tag to the set, normalizing it first.
// Blank tags and duplicates (case-insensitively, post-normalization) are
// rejected silently: the input slice is returned unchanged.
func AppendTag(tags []string, raw string) []string {
	tag := NormalizeTag(raw)
	if tag == "" {
		return tags
	}
	for _, existing := range tags {
		if existing == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// NormalizeTags normalizes a tag list: each tag trimmed and lower-cased,
// blanks dropped, duplicates removed, insertion order preserved.
func NormalizeTags(raw []string) []string {
	normalized := make([]string, 0, len(raw))
	for _, tag := range raw {
		normalized = AppendTag(normalized, tag)
	}
	return normalized
}
