package types

import "errors"

// Hunk describes one contiguous changed region of a diff, as produced by an
// external diff extractor. Line numbers are 1-based; a zero-length range
// (pure deletion or insertion point) has Lines == 0.
type Hunk struct {
	FilePath string
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// NewRange returns the post-image line range touched by the hunk as a
// 1-based inclusive [start, end] pair. For a zero-length new range the
// insertion point itself is returned so downstream lookups still have a
// line to anchor on.
func (h Hunk) NewRange() (start, end int) {
	start = h.NewStart
	if start < 1 {
		start = 1
	}
	if h.NewLines <= 0 {
		return start, start
	}
	return start, start + h.NewLines - 1
}

// Validate checks hunk fields for internal consistency.
func (h Hunk) Validate() error {
	if h.FilePath == "" {
		return errors.New("hunk file path cannot be empty")
	}
	if h.NewStart < 0 || h.OldStart < 0 {
		return errors.New("hunk start lines cannot be negative")
	}
	if h.NewLines < 0 || h.OldLines < 0 {
		return errors.New("hunk line counts cannot be negative")
	}
	return nil
}
