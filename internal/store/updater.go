package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/specq/specq/internal/queue"
)

// DefaultMaxAttempts bounds one logical update: the first try plus retries
// after revision conflicts or transient transport failures.
const DefaultMaxAttempts = 5

func newUpdateBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // attempts are bounded, elapsed time is not
	return bo
}

// Updater applies transforms to the state document with optimistic
// concurrency. Each attempt reads a fresh document, applies the transform
// to that copy, and writes it back under the read revision. A conflicting
// write from elsewhere restarts the cycle, so the transform always runs
// against the state that will actually be persisted, never a stale
// candidate.
type Updater struct {
	Store DocumentStore

	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int

	// NewBackOff supplies the delay schedule between attempts. Defaults to
	// exponential backoff with jitter.
	NewBackOff func() backoff.BackOff
}

// NewUpdater builds an updater with default retry settings.
func NewUpdater(s DocumentStore) *Updater {
	return &Updater{Store: s}
}

func (u *Updater) maxAttempts() int {
	if u.MaxAttempts > 0 {
		return u.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (u *Updater) newBackOff() backoff.BackOff {
	if u.NewBackOff != nil {
		return u.NewBackOff()
	}
	return newUpdateBackoff()
}

// retryable reports whether an attempt should be reissued: revision
// conflicts always, transport failures when the backend says so. Domain
// errors from transforms are neither and stop the loop at once.
func retryable(err error) bool {
	if errors.Is(err, ErrRevisionConflict) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// Update runs one read-transform-write cycle to completion, returning the
// document as written. A missing document starts from the initial empty
// state and the write creates it. Transform errors surface unchanged and
// consume no retries; conflict and transient transport errors retry up to
// the attempt budget, after which ErrMaxRetriesExceeded wraps the last
// cause.
func (u *Updater) Update(ctx context.Context, transform queue.Transform) (*queue.Document, error) {
	var result *queue.Document

	bo := backoff.WithMaxRetries(u.newBackOff(), uint64(u.maxAttempts()-1))
	op := func() error {
		rd, err := ReadOrInit(ctx, u.Store)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := transform(rd.Doc); err != nil {
			return backoff.Permanent(err)
		}
		if _, err := u.Store.Write(ctx, rd.Doc, rd.Revision); err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = rd.Doc
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if retryable(err) {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, u.maxAttempts(), err)
		}
		return nil, err
	}
	return result, nil
}

// Read returns the current document without modifying it, translating a
// missing document into the initial empty state.
func (u *Updater) Read(ctx context.Context) (*queue.Document, error) {
	rd, err := ReadOrInit(ctx, u.Store)
	if err != nil {
		return nil, err
	}
	return rd.Doc, nil
}
