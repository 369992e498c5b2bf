// Package specq exposes the queue state machine for programs that embed
// the pipeline instead of shelling out to the specq CLI.
//
// The CLI remains the primary surface. This package re-exports the core
// document types and the atomic updater so orchestrators written in Go
// can read and transform the state document with the same conflict
// handling the CLI uses.
package specq

import (
	"time"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/store"
)

// Core types for the queue state document.
type (
	Document  = queue.Document
	Item      = queue.Item
	ItemError = queue.ItemError
	PRInfo    = queue.PRInfo
	Status    = queue.Status
	Transform = queue.Transform
)

// Item lifecycle states.
const (
	StatusPending   = queue.StatusPending
	StatusActive    = queue.StatusActive
	StatusCompleted = queue.StatusCompleted
	StatusFailed    = queue.StatusFailed
)

// Store types. LocalMode keeps the document in a file on disk,
// RemoteMode keeps it on a dedicated branch behind the Contents API.
type (
	DocumentStore = store.DocumentStore
	Mode          = store.Mode
	LocalMode     = store.LocalMode
	RemoteMode    = store.RemoteMode
	Updater       = store.Updater
)

// ErrNotFound reports a missing state document on Read.
var ErrNotFound = store.ErrNotFound

// Open builds a document store for the given mode.
func Open(mode Mode) (DocumentStore, error) {
	return store.Open(mode)
}

// NewUpdater wraps a store in the read-transform-write loop with
// optimistic locking and bounded retries.
func NewUpdater(s DocumentStore) *Updater {
	return store.NewUpdater(s)
}

// NewDocument returns an empty state document.
func NewDocument() *Document {
	return queue.NewDocument()
}

// NewItem builds a pending queue item for a spec.
func NewItem(specID, filePath, testName string, priority int, now time.Time) Item {
	return queue.NewItem(specID, filePath, testName, priority, now)
}

// Enqueue appends an item to the pending queue if its spec is not
// already tracked.
func Enqueue(item Item) Transform {
	return queue.Enqueue(item)
}

// LockAndActivateSpecs moves the given pending specs to active and
// records their file and spec locks.
func LockAndActivateSpecs(specIDs []string, now time.Time) Transform {
	return queue.LockAndActivateSpecs(specIDs, now)
}

// MarkCompleted moves an active spec to completed and releases its
// locks.
func MarkCompleted(specID string, now time.Time) Transform {
	return queue.MarkCompleted(specID, now)
}

// RecordFailureAndRequeue counts a failed attempt and returns the spec
// to the pending queue.
func RecordFailureAndRequeue(specID string, e ItemError, now time.Time) Transform {
	return queue.RecordFailureAndRequeue(specID, e, now)
}

// MoveToManualIntervention parks a spec in the failed list until a
// human requeues it.
func MoveToManualIntervention(specID, reason string, now time.Time) Transform {
	return queue.MoveToManualIntervention(specID, reason, now)
}
