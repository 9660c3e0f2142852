package services

import (
	"errors"

	"github.com/yungbote/commitments-backend/internal/locking"
)

// Terminal (non-retryable) failures. Everything else that escapes a service
// is presumed transient storage trouble and safe to retry: resolution is
// idempotent by source_artifact_id.
var (
	// ErrMalformedCandidate marks a data-quality rejection: the candidate
	// carries neither a title nor any temporal hint (or is internally
	// inconsistent). Not retried.
	ErrMalformedCandidate = errors.New("malformed candidate")

	// ErrNotFound is returned by read paths asked for an id that does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrTerminalStatus rejects status transitions out of completed or
	// cancelled.
	ErrTerminalStatus = errors.New("commitment is in a terminal status")
)

// Retryable classifies an error for the ingest worker: lock timeouts and
// storage failures requeue, data-quality and domain errors do not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrMalformedCandidate),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTerminalStatus):
		return false
	case errors.Is(err, locking.ErrLockTimeout):
		return true
	default:
		return true
	}
}
