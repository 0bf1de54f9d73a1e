package core

import (
	"errors"
	"fmt"
)

// ErrDuplicateVersion signals an idempotent no-op: the document already has
// a version with this source hash. Not a failure.
var ErrDuplicateVersion = errors.New("duplicate document version")

// ErrBothLegsFailed is returned when neither retrieval leg produced a
// usable ranking; no results can be trusted.
var ErrBothLegsFailed = errors.New("both retrieval legs failed")

// ErrJobNotClaimed is returned by conditional job updates when the lease
// was lost (expired and reclaimed by another worker).
var ErrJobNotClaimed = errors.New("job lease not held")

// ParseError marks structurally bad or unsupported input. It is fatal for
// the job: the same bytes will not parse differently on retry.
type ParseError struct {
	MimeType string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.MimeType, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingError marks a transient embedding-capability failure (rate
// limits, timeouts). The orchestrator retries it with backoff.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
