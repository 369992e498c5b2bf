package store

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/specq/specq/internal/github"
)

// Sentinel errors shared by every store backend.
var (
	// ErrNotFound means the state document does not exist yet. Callers that
	// can start from scratch use ReadOrInit instead of handling this.
	ErrNotFound = errors.New("state document not found")

	// ErrRevisionConflict means another writer committed between this
	// writer's read and write. The document must be re-read and the change
	// re-applied.
	ErrRevisionConflict = errors.New("state document revision conflict")

	// ErrMaxRetriesExceeded means the updater ran out of attempts without a
	// clean write.
	ErrMaxRetriesExceeded = errors.New("max update attempts exceeded")
)

// TransportError wraps a failure reaching the backing storage. StatusCode
// is zero for network-level failures.
type TransportError struct {
	Op         string // "read" or "write"
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("state %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("state %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient: server-side errors,
// rate limiting, and network failures qualify; client errors do not.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// isShaMismatch discriminates the contents API's optimistic-locking
// rejections from other 4xx failures. GitHub answers a stale sha with 409,
// and in some paths with a 422 whose message names the mismatch. This is
// the one place the code inspects an error message.
func isShaMismatch(apiErr *github.APIError) bool {
	switch apiErr.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "does not match") || strings.Contains(msg, "expected")
	}
	return false
}

// mapWriteError translates a contents write failure into store errors.
func mapWriteError(err error) error {
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		if isShaMismatch(apiErr) {
			return fmt.Errorf("%w: %v", ErrRevisionConflict, err)
		}
		return &TransportError{Op: "write", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &TransportError{Op: "write", Err: err}
}

// mapReadError translates a contents read failure into store errors.
func mapReadError(err error) error {
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{Op: "read", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &TransportError{Op: "read", Err: err}
}
