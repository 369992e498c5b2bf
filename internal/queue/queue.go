// Package queue defines the persisted state document for the spec pipeline:
// four lifecycle queues, the active lock sets, and pure transforms the
// atomic updater applies against a freshly read document.
package queue

import (
	"fmt"
	"sort"
	"time"
)

// maxCompletedHistory caps the completed queue at the most recent entries.
// Older completions fall off so the document stays small enough to review
// as a diff on the state branch.
const maxCompletedHistory = 100

// DefaultMaxRetries is the retry budget written into new documents.
const DefaultMaxRetries = 3

// Status represents where an item sits in its lifecycle.
type Status string

// Item status constants. Manual intervention is StatusFailed plus
// RequiresAction on the item.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid checks if the status value is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no outgoing transition is defined for the
// status. Completed items never leave; failed items can be requeued.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// validTransitions defines the allowed lifecycle edges. active -> pending
// is the retry edge; failed -> pending is the operator requeue edge.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusActive: true,
	},
	StatusActive: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusPending:   true,
	},
	StatusFailed: {
		StatusPending: true,
	},
	StatusCompleted: {},
}

// ValidateTransition returns an error if the lifecycle edge is not defined.
func ValidateTransition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !validTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ItemError records one failed attempt on an item.
type ItemError struct {
	Type      string    `json:"type"` // "spec" or "infra"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Error type constants for ItemError.Type.
const (
	ErrorTypeSpec  = "spec"
	ErrorTypeInfra = "infra"
)

// Item is one spec moving through the pipeline.
type Item struct {
	ID             string      `json:"id"`
	SpecID         string      `json:"specId"`
	FilePath       string      `json:"filePath"`
	TestName       string      `json:"testName,omitempty"`
	Priority       int         `json:"priority"` // No omitempty: 0 is the highest priority
	Status         Status      `json:"status"`
	Attempts       int         `json:"attempts"`
	Errors         []ItemError `json:"errors,omitempty"`
	QueuedAt       time.Time   `json:"queuedAt"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	LastAttempt    *time.Time  `json:"lastAttempt,omitempty"`
	PRNumber       *int        `json:"prNumber,omitempty"`
	PRURL          string      `json:"prUrl,omitempty"`
	Branch         string      `json:"branch,omitempty"`
	FailureReason  string      `json:"failureReason,omitempty"`
	RequiresAction bool        `json:"requiresAction,omitempty"`
}

// NewItem builds a pending item for a spec. The ID embeds the enqueue time
// so re-enqueued specs get distinct item IDs.
func NewItem(specID, filePath, testName string, priority int, now time.Time) Item {
	return Item{
		ID:       fmt.Sprintf("%s-%d", specID, now.UnixMilli()),
		SpecID:   specID,
		FilePath: filePath,
		TestName: testName,
		Priority: priority,
		Status:   StatusPending,
		QueuedAt: now,
	}
}

// LastActivity returns the most recent lifecycle timestamp on the item.
// Cooldown periods are measured from this instant.
func (it *Item) LastActivity() time.Time {
	t := it.QueuedAt
	if it.StartedAt != nil && it.StartedAt.After(t) {
		t = *it.StartedAt
	}
	if it.LastAttempt != nil && it.LastAttempt.After(t) {
		t = *it.LastAttempt
	}
	return t
}

// HasSpecFailure reports whether any recorded error was a spec failure.
// Items with spec failures get the longer cooldown period.
func (it *Item) HasSpecFailure() bool {
	for _, e := range it.Errors {
		if e.Type == ErrorTypeSpec {
			return true
		}
	}
	return false
}

// Queues holds the four lifecycle queues.
type Queues struct {
	Pending   []Item `json:"pending"`
	Active    []Item `json:"active"`
	Completed []Item `json:"completed"`
	Failed    []Item `json:"failed"`
}

// Metrics accumulates counters across the document's lifetime.
type Metrics struct {
	TotalProcessed          int     `json:"totalProcessed"`
	ManualInterventionCount int     `json:"manualInterventionCount"`
	CostSavingsFromSkips    float64 `json:"costSavingsFromSkips"`
}

// DocConfig is durable per-document configuration.
type DocConfig struct {
	MaxRetries int `json:"maxRetries"`
}

// Document is the entire persisted state. One revision covers the whole
// document; there is no finer-grained locking.
type Document struct {
	Queue       Queues    `json:"queue"`
	ActiveFiles []string  `json:"activeFiles"`
	ActiveSpecs []string  `json:"activeSpecs"`
	Metrics     Metrics   `json:"metrics"`
	Config      DocConfig `json:"config"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewDocument returns the initial empty state written on first use.
func NewDocument() *Document {
	return &Document{
		Queue: Queues{
			Pending:   []Item{},
			Active:    []Item{},
			Completed: []Item{},
			Failed:    []Item{},
		},
		ActiveFiles: []string{},
		ActiveSpecs: []string{},
		Config:      DocConfig{MaxRetries: DefaultMaxRetries},
	}
}

// queueFor returns the slice backing a status. Callers mutate through the
// returned pointer.
func (d *Document) queueFor(s Status) *[]Item {
	switch s {
	case StatusPending:
		return &d.Queue.Pending
	case StatusActive:
		return &d.Queue.Active
	case StatusCompleted:
		return &d.Queue.Completed
	case StatusFailed:
		return &d.Queue.Failed
	}
	return nil
}

// Find locates a spec in any queue. The returned pointer aliases the
// document's storage and stays valid until the queues are mutated.
func (d *Document) Find(specID string) (*Item, Status, bool) {
	for _, s := range []Status{StatusPending, StatusActive, StatusCompleted, StatusFailed} {
		q := d.queueFor(s)
		for i := range *q {
			if (*q)[i].SpecID == specID {
				return &(*q)[i], s, true
			}
		}
	}
	return nil, "", false
}

// HasActiveFile reports whether a file path is locked.
func (d *Document) HasActiveFile(path string) bool {
	for _, f := range d.ActiveFiles {
		if f == path {
			return true
		}
	}
	return false
}

// HasActiveSpec reports whether a spec ID is locked.
func (d *Document) HasActiveSpec(specID string) bool {
	for _, s := range d.ActiveSpecs {
		if s == specID {
			return true
		}
	}
	return false
}

// addLock inserts into a lock set if absent.
func addLock(set *[]string, v string) {
	if v == "" {
		return
	}
	for _, s := range *set {
		if s == v {
			return
		}
	}
	*set = append(*set, v)
}

// removeLock deletes from a lock set if present.
func removeLock(set *[]string, v string) {
	for i, s := range *set {
		if s == v {
			*set = append((*set)[:i], (*set)[i+1:]...)
			return
		}
	}
}

// RebuildLocks recomputes both lock sets from the active queue. The active
// queue is the source of truth; the sets are derived.
func (d *Document) RebuildLocks() {
	files := make([]string, 0, len(d.Queue.Active))
	specs := make([]string, 0, len(d.Queue.Active))
	for _, it := range d.Queue.Active {
		addLock(&files, it.FilePath)
		addLock(&specs, it.SpecID)
	}
	d.ActiveFiles = files
	d.ActiveSpecs = specs
}

// trimCompleted drops the oldest completions beyond the history cap.
func (d *Document) trimCompleted() {
	if len(d.Queue.Completed) <= maxCompletedHistory {
		return
	}
	sort.SliceStable(d.Queue.Completed, func(i, j int) bool {
		ti, tj := d.Queue.Completed[i].CompletedAt, d.Queue.Completed[j].CompletedAt
		switch {
		case ti == nil:
			return true
		case tj == nil:
			return false
		default:
			return ti.Before(*tj)
		}
	})
	excess := len(d.Queue.Completed) - maxCompletedHistory
	d.Queue.Completed = d.Queue.Completed[excess:]
}

// Validate checks document invariants: each spec in at most one queue,
// statuses consistent with queue membership, and lock sets matching the
// active queue exactly.
func (d *Document) Validate() error {
	seen := make(map[string]Status)
	for _, s := range []Status{StatusPending, StatusActive, StatusCompleted, StatusFailed} {
		for _, it := range *d.queueFor(s) {
			if prev, dup := seen[it.SpecID]; dup {
				return fmt.Errorf("spec %s present in both %s and %s queues", it.SpecID, prev, s)
			}
			seen[it.SpecID] = s
			if it.Status != s {
				return fmt.Errorf("spec %s in %s queue has status %q", it.SpecID, s, it.Status)
			}
		}
	}

	wantFiles := make(map[string]bool)
	wantSpecs := make(map[string]bool)
	for _, it := range d.Queue.Active {
		if it.FilePath != "" {
			wantFiles[it.FilePath] = true
		}
		wantSpecs[it.SpecID] = true
	}
	if len(d.ActiveFiles) != len(wantFiles) {
		return fmt.Errorf("activeFiles has %d entries, active queue holds %d files", len(d.ActiveFiles), len(wantFiles))
	}
	for _, f := range d.ActiveFiles {
		if !wantFiles[f] {
			return fmt.Errorf("activeFiles entry %q has no active item", f)
		}
	}
	if len(d.ActiveSpecs) != len(wantSpecs) {
		return fmt.Errorf("activeSpecs has %d entries, active queue holds %d specs", len(d.ActiveSpecs), len(wantSpecs))
	}
	for _, s := range d.ActiveSpecs {
		if !wantSpecs[s] {
			return fmt.Errorf("activeSpecs entry %q has no active item", s)
		}
	}
	return nil
}

// Counts returns per-queue item counts for status output.
func (d *Document) Counts() map[Status]int {
	return map[Status]int{
		StatusPending:   len(d.Queue.Pending),
		StatusActive:    len(d.Queue.Active),
		StatusCompleted: len(d.Queue.Completed),
		StatusFailed:    len(d.Queue.Failed),
	}
}
