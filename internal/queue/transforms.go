package queue

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors returned by transforms. The atomic updater treats every
// transform error as permanent: it is surfaced immediately, never retried.
var (
	ErrNotFound          = errors.New("spec not found in queue")
	ErrDuplicate         = errors.New("spec already queued")
	ErrAlreadyActive     = errors.New("spec already active")
	ErrFileLocked        = errors.New("file locked by another active spec")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Transform mutates a document in place. Transforms must be pure over their
// inputs: no I/O, no clock reads. The updater re-applies a transform to a
// freshly read document after a revision conflict, so applying one twice to
// different base documents must be safe.
type Transform func(doc *Document) error

// Enqueue appends a pending item. The spec must not exist in any queue.
func Enqueue(item Item) Transform {
	return func(doc *Document) error {
		if _, where, ok := doc.Find(item.SpecID); ok {
			return fmt.Errorf("%w: %s is %s", ErrDuplicate, item.SpecID, where)
		}
		item.Status = StatusPending
		doc.Queue.Pending = append(doc.Queue.Pending, item)
		return nil
	}
}

// takeFrom removes and returns the item for specID from the given queue.
func takeFrom(doc *Document, s Status, specID string) (Item, bool) {
	q := doc.queueFor(s)
	for i := range *q {
		if (*q)[i].SpecID == specID {
			it := (*q)[i]
			*q = append((*q)[:i], (*q)[i+1:]...)
			return it, true
		}
	}
	return Item{}, false
}

// LockAndActivateSpecs moves the given pending specs to active and inserts
// their file and spec locks, all in one transform. Activating specs one at
// a time would let two racing schedulers each win a different half.
func LockAndActivateSpecs(specIDs []string, now time.Time) Transform {
	return func(doc *Document) error {
		for _, specID := range specIDs {
			if _, st, ok := doc.Find(specID); ok && st == StatusActive {
				return fmt.Errorf("%w: %s", ErrAlreadyActive, specID)
			}
			it, ok := takeFrom(doc, StatusPending, specID)
			if !ok {
				return fmt.Errorf("%w: %s not pending", ErrNotFound, specID)
			}
			if it.FilePath != "" && doc.HasActiveFile(it.FilePath) {
				// Put it back so a failed batch leaves the document unchanged
				// in spirit; the updater discards the candidate anyway.
				doc.Queue.Pending = append(doc.Queue.Pending, it)
				return fmt.Errorf("%w: %s", ErrFileLocked, it.FilePath)
			}
			started := now
			it.Status = StatusActive
			it.StartedAt = &started
			doc.Queue.Active = append(doc.Queue.Active, it)
			addLock(&doc.ActiveFiles, it.FilePath)
			addLock(&doc.ActiveSpecs, it.SpecID)
		}
		return nil
	}
}

// MarkCompleted moves an active spec to completed, releases its locks, and
// bumps the processed counter. The completed queue is trimmed to its cap.
func MarkCompleted(specID string, now time.Time) Transform {
	return func(doc *Document) error {
		it, ok := takeFrom(doc, StatusActive, specID)
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotFound, specID)
		}
		done := now
		it.Status = StatusCompleted
		it.CompletedAt = &done
		doc.Queue.Completed = append(doc.Queue.Completed, it)
		doc.trimCompleted()
		doc.Metrics.TotalProcessed++
		removeLock(&doc.ActiveFiles, it.FilePath)
		removeLock(&doc.ActiveSpecs, it.SpecID)
		return nil
	}
}

// RecordFailureAndRequeue logs a failed attempt against an active spec and
// returns it to pending: the error is appended, the attempt counter
// incremented, and the locks released.
func RecordFailureAndRequeue(specID string, e ItemError, now time.Time) Transform {
	return requeueActive(specID, e, now, true)
}

// RequeueWithoutPenalty returns an active spec to pending after an
// infrastructure failure. The error is recorded but the attempt counter is
// untouched; infrastructure failures never consume the retry budget.
func RequeueWithoutPenalty(specID string, e ItemError, now time.Time) Transform {
	return requeueActive(specID, e, now, false)
}

func requeueActive(specID string, e ItemError, now time.Time, countAttempt bool) Transform {
	return func(doc *Document) error {
		it, ok := takeFrom(doc, StatusActive, specID)
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotFound, specID)
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		last := now
		it.Status = StatusPending
		it.Errors = append(it.Errors, e)
		it.LastAttempt = &last
		if countAttempt {
			it.Attempts++
		}
		doc.Queue.Pending = append(doc.Queue.Pending, it)
		removeLock(&doc.ActiveFiles, it.FilePath)
		removeLock(&doc.ActiveSpecs, it.SpecID)
		return nil
	}
}

// MoveToManualIntervention moves an active spec to failed with
// RequiresAction set. Failed specs stay put until an operator requeues them.
func MoveToManualIntervention(specID, reason string, now time.Time) Transform {
	return func(doc *Document) error {
		it, ok := takeFrom(doc, StatusActive, specID)
		if !ok {
			return fmt.Errorf("%w: %s not active", ErrNotFound, specID)
		}
		last := now
		it.Status = StatusFailed
		it.RequiresAction = true
		it.FailureReason = reason
		it.LastAttempt = &last
		doc.Queue.Failed = append(doc.Queue.Failed, it)
		doc.Metrics.ManualInterventionCount++
		removeLock(&doc.ActiveFiles, it.FilePath)
		removeLock(&doc.ActiveSpecs, it.SpecID)
		return nil
	}
}

// RequeueOptions controls how an operator requeue resets item history.
type RequeueOptions struct {
	ResetRetries bool
	ClearErrors  bool
}

// RequeueFromFailed moves a failed spec back to pending, clearing the
// manual-intervention flag.
func RequeueFromFailed(specID string, opts RequeueOptions, now time.Time) Transform {
	return func(doc *Document) error {
		it, ok := takeFrom(doc, StatusFailed, specID)
		if !ok {
			return fmt.Errorf("%w: %s not failed", ErrNotFound, specID)
		}
		it.Status = StatusPending
		it.RequiresAction = false
		it.FailureReason = ""
		if opts.ResetRetries {
			it.Attempts = 0
		}
		if opts.ClearErrors {
			it.Errors = nil
		}
		doc.Queue.Pending = append(doc.Queue.Pending, it)
		return nil
	}
}

// PRInfo annotates an active item with its open pull request.
type PRInfo struct {
	Number int
	URL    string
	Branch string
}

// UpdateActivePR records PR details on an active spec. A missing spec is a
// no-op, not an error: the PR may have merged (and the item moved) between
// the caller's read and this write, and re-applying must stay safe.
func UpdateActivePR(specID string, pr PRInfo) Transform {
	return func(doc *Document) error {
		q := doc.queueFor(StatusActive)
		for i := range *q {
			if (*q)[i].SpecID == specID {
				n := pr.Number
				(*q)[i].PRNumber = &n
				(*q)[i].PRURL = pr.URL
				(*q)[i].Branch = pr.Branch
				return nil
			}
		}
		return nil
	}
}

// RemoveLocks deletes lock-set entries without touching queue membership.
// Either argument may be empty. Removing an absent entry is a no-op.
func RemoveLocks(filePath, specID string) Transform {
	return func(doc *Document) error {
		if filePath != "" {
			removeLock(&doc.ActiveFiles, filePath)
		}
		if specID != "" {
			removeLock(&doc.ActiveSpecs, specID)
			if it, st, ok := doc.Find(specID); ok && st == StatusActive {
				removeLock(&doc.ActiveFiles, it.FilePath)
			}
		}
		return nil
	}
}

// AddCostSavings accumulates the estimated cost of a run that was skipped.
func AddCostSavings(amount float64) Transform {
	return func(doc *Document) error {
		doc.Metrics.CostSavingsFromSkips += amount
		return nil
	}
}

// Compose runs transforms in order, stopping at the first error.
func Compose(transforms ...Transform) Transform {
	return func(doc *Document) error {
		for _, tr := range transforms {
			if err := tr(doc); err != nil {
				return err
			}
		}
		return nil
	}
}
