package directory

import "errors"

// Error kinds surfaced to callers. Conflicts are user-correctable races and
// are never retried internally.
var (
	// ErrNotFound means the project or slug does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken means another project already owns the requested slug.
	ErrSlugTaken = errors.New("slug is already taken")
	// ErrVersionConflict means the project was modified concurrently and the
	// caller's version token is stale.
	ErrVersionConflict = errors.New("project was modified by someone else")
	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("invalid input")
)
