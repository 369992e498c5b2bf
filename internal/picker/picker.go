// Package picker selects the next spec for the pipeline to work on. At
// most one automation pull request may be in flight at a time, and that
// guard is checked against GitHub rather than local state so selection
// stays correct even if the state document is lost or stale.
package picker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/policy"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/specs"
)

// DefaultAutomationLabel marks pull requests opened by the pipeline.
const DefaultAutomationLabel = "tdd-automation"

// PRTracker is the view of the pull request API selection needs.
type PRTracker interface {
	ListOpenPullsWithLabel(ctx context.Context, label string) ([]github.PullRequest, error)
	FindPullsByBranchPrefix(ctx context.Context, prefix string) ([]github.PullRequest, error)
}

// FixmeSource supplies the specs still waiting for an implementation.
type FixmeSource interface {
	FindFixme(ctx context.Context) ([]specs.Spec, []string, error)
}

// Candidate is the spec selected for the next run.
type Candidate struct {
	SpecID   string `json:"specId"`
	FilePath string `json:"filePath"`
	TestName string `json:"testName,omitempty"`
	Priority int    `json:"priority"`
}

// Result is the outcome of one selection attempt. A nil Candidate with
// Busy set means an automation PR is already in flight; a nil Candidate
// without Busy means nothing is eligible right now.
type Result struct {
	Candidate *Candidate `json:"candidate,omitempty"`
	Busy      bool       `json:"busy,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Picker scans for eligible specs against a document snapshot. The
// snapshot may be stale; the later lock step re-validates under the
// document revision, so a race here costs a retry, not a double
// activation.
type Picker struct {
	Doc       *queue.Document
	Tracker   PRTracker
	Scanner   FixmeSource
	Cooldowns policy.Cooldowns

	// Label identifies automation PRs. Defaults to DefaultAutomationLabel.
	Label string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *Picker) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Picker) label() string {
	if p.Label != "" {
		return p.Label
	}
	return DefaultAutomationLabel
}

// Pick returns the next spec to work on. A tracker failure during the
// serial guard is returned as an error: selection fails closed, because
// picking blind could start a second concurrent run.
func (p *Picker) Pick(ctx context.Context) (*Result, error) {
	open, err := p.Tracker.ListOpenPullsWithLabel(ctx, p.label())
	if err != nil {
		return nil, fmt.Errorf("serial guard: failed to list automation PRs: %w", err)
	}
	for i := range open {
		pr := &open[i]
		if p.inManualIntervention(specIDForPull(pr)) {
			continue
		}
		return &Result{
			Busy:   true,
			Reason: fmt.Sprintf("serial processing in progress: PR #%d is open", pr.Number),
		}, nil
	}

	// Open PRs on automation branches block their spec even when the
	// label is missing, for example when it was removed by hand.
	branchPulls, err := p.Tracker.FindPullsByBranchPrefix(ctx, specs.BranchPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to search automation branches: %w", err)
	}
	blocked := make(map[string]bool)
	for i := range branchPulls {
		if id := specIDForPull(&branchPulls[i]); id != "" {
			blocked[id] = true
		}
	}

	fixme, warnings, err := p.Scanner.FindFixme(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan specs: %w", err)
	}

	now := p.now()
	var eligible []candidateSort
	for _, spec := range fixme {
		if c, ok := p.evaluate(spec, blocked, now); ok {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return &Result{Reason: "no eligible specs", Warnings: warnings}, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if !a.queuedAt.Equal(b.queuedAt) {
			return a.queuedAt.Before(b.queuedAt)
		}
		return a.spec.ID < b.spec.ID
	})

	best := eligible[0]
	return &Result{
		Candidate: &Candidate{
			SpecID:   best.spec.ID,
			FilePath: best.spec.FilePath,
			TestName: best.spec.DisplayName(),
			Priority: best.priority,
		},
		Warnings: warnings,
	}, nil
}

// candidateSort pairs a spec with the queue history that orders it.
type candidateSort struct {
	spec     specs.Spec
	priority int
	queuedAt time.Time
}

// evaluate applies the eligibility filters to one fixme spec.
func (p *Picker) evaluate(spec specs.Spec, blocked map[string]bool, now time.Time) (candidateSort, bool) {
	c := candidateSort{spec: spec, priority: spec.EffectivePriority(), queuedAt: now}

	if blocked[spec.ID] {
		return c, false
	}
	if p.Doc.HasActiveSpec(spec.ID) || p.Doc.HasActiveFile(spec.FilePath) {
		return c, false
	}

	it, status, ok := p.Doc.Find(spec.ID)
	if !ok {
		// Never enqueued: eligible with no history. queuedAt stays now so
		// long-waiting pending items win ties.
		return c, true
	}
	if status != queue.StatusPending {
		return c, false
	}
	if p.Cooldowns.Check(it, now).InCooldown {
		return c, false
	}
	c.priority = it.Priority
	c.queuedAt = it.QueuedAt
	return c, true
}

// inManualIntervention reports whether the spec sits in the failed queue
// awaiting an operator. Automation PRs for such specs do not count as
// serial processing; everything else does, including PRs whose spec is
// unknown.
func (p *Picker) inManualIntervention(specID string) bool {
	if specID == "" {
		return false
	}
	it, status, ok := p.Doc.Find(specID)
	return ok && status == queue.StatusFailed && it.RequiresAction
}

// specIDForPull resolves which spec a pull request belongs to, trying the
// title convention first and the branch name second.
func specIDForPull(pr *github.PullRequest) string {
	if id, _, err := specs.ParsePRTitle(pr.Title); err == nil {
		return id
	}
	if id, ok := specs.SpecIDFromBranch(pr.Head.Ref); ok {
		return id
	}
	return ""
}
