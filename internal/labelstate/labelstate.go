// Package labelstate mirrors the queue lifecycle onto GitHub issue labels.
// An issue carries at most one state label at a time (tdd:pending,
// tdd:active, and so on); the set is the state. This front-end shares no
// structures with the document queue. The reconcile pass is the only thing
// that keeps the two views consistent.
package labelstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
)

// DefaultPrefix namespaces the state labels, as in "tdd:active".
const DefaultPrefix = "tdd"

// State is one position in the label lifecycle. Manual is the label
// rendering of a failed item with RequiresAction set; both map onto the
// failed queue underneath.
type State string

// Label lifecycle states. StateNone means the issue carries no state label.
const (
	StateNone      State = ""
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateManual    State = "manual"
)

// States lists every labeled state in lifecycle order.
func States() []State {
	return []State{StatePending, StateActive, StateCompleted, StateFailed, StateManual}
}

// queueStatus maps the label state onto the queue status whose transition
// edges govern it.
func (s State) queueStatus() queue.Status {
	if s == StateManual {
		return queue.StatusFailed
	}
	return queue.Status(s)
}

// ConflictError reports an issue carrying more than one state label. The
// labels are listed so an operator can see exactly what to remove.
type ConflictError struct {
	Issue  int
	Labels []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("issue #%d carries conflicting state labels: %s",
		e.Issue, strings.Join(e.Labels, ", "))
}

// LabelClient is the slice of the GitHub API the machine needs.
type LabelClient interface {
	FetchIssueByNumber(ctx context.Context, number int) (*github.Issue, error)
	FetchIssuesByLabel(ctx context.Context, label, state string) ([]github.Issue, error)
	AddLabels(ctx context.Context, number int, labels []string) error
	RemoveLabel(ctx context.Context, number int, label string) error
}

// Machine reads and writes lifecycle state through issue labels.
type Machine struct {
	Client LabelClient

	// Prefix defaults to DefaultPrefix.
	Prefix string
}

func (m *Machine) prefix() string {
	if m.Prefix != "" {
		return m.Prefix
	}
	return DefaultPrefix
}

// LabelFor returns the full label name for a state, like "tdd:active".
func (m *Machine) LabelFor(s State) string {
	return m.prefix() + ":" + string(s)
}

// stateLabelsOn returns the state labels the issue currently carries.
// Labels under the prefix that are not lifecycle states ("tdd:docs") are
// ignored, as are unprefixed labels.
func (m *Machine) stateLabelsOn(issue *github.Issue) []string {
	var found []string
	for _, name := range github.LabelNames(issue.Labels) {
		prefix, value := github.ParseLabelName(name)
		if prefix != m.prefix() {
			continue
		}
		for _, s := range States() {
			if State(value) == s {
				found = append(found, name)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

func stateFromLabel(label string) State {
	_, value := github.ParseLabelName(label)
	return State(value)
}

// State returns the issue's current lifecycle state. An issue with no
// state label is StateNone; more than one is a *ConflictError.
func (m *Machine) State(ctx context.Context, number int) (State, error) {
	issue, err := m.Client.FetchIssueByNumber(ctx, number)
	if err != nil {
		return StateNone, err
	}
	labels := m.stateLabelsOn(issue)
	switch len(labels) {
	case 0:
		return StateNone, nil
	case 1:
		return stateFromLabel(labels[0]), nil
	default:
		return StateNone, &ConflictError{Issue: number, Labels: labels}
	}
}

// Set moves the issue to the target state. The edge is validated against
// the queue lifecycle; moving between failed and manual is an annotation
// change within the same queue and always allowed. The old label is
// removed before the new one is added so a crash midway leaves the issue
// unlabeled rather than double-labeled.
func (m *Machine) Set(ctx context.Context, number int, target State) error {
	if target == StateNone {
		return fmt.Errorf("cannot set issue #%d to the empty state, use Clear", number)
	}
	issue, err := m.Client.FetchIssueByNumber(ctx, number)
	if err != nil {
		return err
	}
	labels := m.stateLabelsOn(issue)
	if len(labels) > 1 {
		return &ConflictError{Issue: number, Labels: labels}
	}

	current := StateNone
	if len(labels) == 1 {
		current = stateFromLabel(labels[0])
	}
	if current == target {
		return nil
	}
	if err := validateEdge(current, target); err != nil {
		return fmt.Errorf("issue #%d: %w", number, err)
	}

	for _, label := range labels {
		if err := m.Client.RemoveLabel(ctx, number, label); err != nil {
			// Someone else already removed it; keep going.
			if errors.Is(err, github.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return m.Client.AddLabels(ctx, number, []string{m.LabelFor(target)})
}

// Clear removes every state label from the issue, leaving other labels in
// place. This is the repair tool for conflicted issues.
func (m *Machine) Clear(ctx context.Context, number int) error {
	issue, err := m.Client.FetchIssueByNumber(ctx, number)
	if err != nil {
		return err
	}
	for _, label := range m.stateLabelsOn(issue) {
		if err := m.Client.RemoveLabel(ctx, number, label); err != nil {
			if errors.Is(err, github.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// Find returns the open issues currently in the given state.
func (m *Machine) Find(ctx context.Context, s State) ([]github.Issue, error) {
	return m.Client.FetchIssuesByLabel(ctx, m.LabelFor(s), "open")
}

// validateEdge checks one label transition. A fresh issue may enter any
// state; otherwise the queue lifecycle edges apply, with same-queue moves
// (failed <-> manual) allowed unconditionally.
func validateEdge(from, to State) error {
	if from == StateNone {
		return nil
	}
	qf, qt := from.queueStatus(), to.queueStatus()
	if qf == qt {
		return nil
	}
	if err := queue.ValidateTransition(qf, qt); err != nil {
		return fmt.Errorf("label transition %s -> %s: %w", from, to, err)
	}
	return nil
}
