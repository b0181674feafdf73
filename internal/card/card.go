package card

import (
	"strings"
)

// FileCard is the per-file planning input: identity, filesystem metadata, and
// the AI-derived summary/tags produced by the classification stage. Cards are
// immutable once handed to the planner.
type FileCard struct {
	// FileID uniquely identifies the file within its source
	FileID string `json:"file_id"`

	// SourceID identifies the collection (watched root) the file belongs to
	SourceID string `json:"source_id"`

	// Path is the absolute filesystem path
	Path string `json:"path"`

	// RelativePath is the path relative to the source root
	RelativePath string `json:"relative_path"`

	// Name is the base file name including extension
	Name string `json:"name"`

	// Extension is the lowercased extension without the leading dot
	Extension string `json:"extension"`

	// Size is the file size in bytes
	Size int64 `json:"size"`

	// MTime is the modification time as a Unix timestamp
	MTime int64 `json:"mtime"`

	// Summary is an optional one-paragraph content summary (nullable)
	Summary *string `json:"summary"`

	// Tags is a list of lowercased classification tags
	Tags []string `json:"tags"`
}

// SummaryText returns the summary or "" when absent.
func (c *FileCard) SummaryText() string {
	if c.Summary == nil {
		return ""
	}
	return *c.Summary
}

// MatchPath returns the path used for substring rule matching: the relative
// path when present, otherwise the absolute path.
func (c *FileCard) MatchPath() string {
	if c.RelativePath != "" {
		return c.RelativePath
	}
	return c.Path
}

// NormalizeTag lowercases and trims a tag. Duplicate tags are treated as
// idempotent by the engine, so normalization alone is enough for matching.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeTags normalizes every tag and removes duplicates and empties,
// preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// HasTag reports whether the card carries the given tag (case-insensitive).
func (c *FileCard) HasTag(tag string) bool {
	tag = NormalizeTag(tag)
	for _, t := range c.Tags {
		if NormalizeTag(t) == tag {
			return true
		}
	}
	return false
}
