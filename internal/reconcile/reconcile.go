// Package reconcile corrects queue-membership drift against pull request
// truth. Items sit in the active queue while an external runner drives
// their PRs; merges, closures, and crashed runners all land first on
// GitHub, and this pass folds those outcomes back into the state
// document. It must run before selection on every scheduling cycle.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/specs"
	"github.com/specq/specq/internal/store"
)

const (
	// StalePRThreshold marks open PRs with no movement for this long.
	// Stale PRs are flagged in the report; cleanup stays external.
	StalePRThreshold = 60 * time.Minute

	// ActivationGrace is how long an active item may sit without any PR
	// before it counts as orphaned. PR creation takes a while after
	// activation; requeueing sooner would thrash fresh activations.
	ActivationGrace = 15 * time.Minute

	// maxConcurrentLookups bounds the PR status fan-out.
	maxConcurrentLookups = 4
)

// PRTracker is the view of the pull request API the sync pass needs.
type PRTracker interface {
	GetPull(ctx context.Context, number int) (*github.PullRequest, error)
	ListPullsForBranch(ctx context.Context, branch string) ([]github.PullRequest, error)
}

// CostEstimator answers what one more pipeline run would have cost.
type CostEstimator interface {
	EstimateRunCost(ctx context.Context) float64
}

// StalePR flags an open automation PR with no recent movement.
type StalePR struct {
	SpecID      string `json:"specId"`
	PRNumber    int    `json:"prNumber"`
	IdleMinutes int    `json:"idleMinutes"`
}

// Report summarizes one sync pass.
type Report struct {
	Checked     int       `json:"checked"`
	Completed   int       `json:"completed"`
	Requeued    int       `json:"requeued"`
	Failed      int       `json:"failed"`
	Orphaned    int       `json:"orphaned"`
	StalePRs    []StalePR `json:"stalePRs,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	CostSavings float64   `json:"costSavings,omitempty"`
}

// Reconciler syncs the active queue with PR reality.
type Reconciler struct {
	Updater   *store.Updater
	Tracker   PRTracker
	Estimator CostEstimator // optional

	// MaxRetries overrides the document's own retry budget when positive.
	MaxRetries int

	// Now defaults to time.Now.
	Now func() time.Time
}

// prState is the observed condition of an active item's pull request.
type prState int

const (
	prOpen prState = iota
	prMerged
	prClosed
	prNone
	prLookupFailed
)

// observation records external facts about one active item. Queue
// mutations are decided later, against a fresh document, so a concurrent
// writer cannot be clobbered with stale conclusions.
type observation struct {
	specID string
	state  prState

	prNumber   int
	prURL      string
	branch     string
	discovered bool // PR found by branch search, not recorded on the item

	idleMinutes int
	warning     string
	savings     float64
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one sync pass: observe every active item's PR, then apply
// the membership corrections in a single document update.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	doc, err := r.Updater.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	active := make([]queue.Item, len(doc.Queue.Active))
	copy(active, doc.Queue.Active)

	report := &Report{Checked: len(active)}
	if len(active) == 0 && !locksDrifted(doc) {
		return report, nil
	}

	now := r.now()
	obs := make([]observation, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i := range active {
		i := i
		g.Go(func() error {
			obs[i] = r.observe(gctx, &active[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range obs {
		if o.warning != "" {
			report.Warnings = append(report.Warnings, o.warning)
		}
		if o.state == prOpen && o.idleMinutes >= int(StalePRThreshold.Minutes()) {
			report.StalePRs = append(report.StalePRs, StalePR{
				SpecID:      o.specID,
				PRNumber:    o.prNumber,
				IdleMinutes: o.idleMinutes,
			})
		}
	}

	// One estimate covers every externally merged item in this pass.
	if r.Estimator != nil {
		estimate := 0.0
		estimated := false
		for i := range obs {
			if obs[i].state != prMerged {
				continue
			}
			if !estimated {
				estimate = r.Estimator.EstimateRunCost(ctx)
				estimated = true
			}
			obs[i].savings = estimate
		}
	}

	if !needsWrite(obs, active, now) && !locksDrifted(doc) {
		return report, nil
	}

	if _, err := r.Updater.Update(ctx, r.applyTransform(obs, now, report)); err != nil {
		return nil, fmt.Errorf("failed to apply sync corrections: %w", err)
	}
	return report, nil
}

// observe resolves the PR condition for one active item.
func (r *Reconciler) observe(ctx context.Context, it *queue.Item, now time.Time) observation {
	o := observation{specID: it.SpecID}

	if it.PRNumber != nil {
		pr, err := r.Tracker.GetPull(ctx, *it.PRNumber)
		if err != nil {
			o.state = prLookupFailed
			o.warning = fmt.Sprintf("%s: failed to check PR #%d: %v", it.SpecID, *it.PRNumber, err)
			return o
		}
		classify(&o, pr, now)
		return o
	}

	branch := it.Branch
	if branch == "" {
		branch = specs.BranchFor(it.SpecID)
	}
	pulls, err := r.Tracker.ListPullsForBranch(ctx, branch)
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		o.state = prLookupFailed
		o.warning = fmt.Sprintf("%s: failed to search branch %s: %v", it.SpecID, branch, err)
		return o
	}
	pr := mostRelevant(pulls)
	if pr == nil {
		o.state = prNone
		return o
	}
	o.discovered = true
	classify(&o, pr, now)
	return o
}

// classify fills the observation from a resolved pull request.
func classify(o *observation, pr *github.PullRequest, now time.Time) {
	o.prNumber = pr.Number
	o.prURL = pr.HTMLURL
	o.branch = pr.Head.Ref
	switch {
	case pr.Merged():
		o.state = prMerged
	case pr.State == "closed":
		o.state = prClosed
	default:
		o.state = prOpen
		if pr.UpdatedAt != nil {
			o.idleMinutes = int(now.Sub(*pr.UpdatedAt).Minutes())
		}
	}
}

// mostRelevant picks the PR that decides an item's fate: an open PR if
// one exists, otherwise the most recently updated.
func mostRelevant(pulls []github.PullRequest) *github.PullRequest {
	if len(pulls) == 0 {
		return nil
	}
	sort.SliceStable(pulls, func(i, j int) bool {
		if open := pulls[i].State == "open"; open != (pulls[j].State == "open") {
			return open
		}
		ti, tj := pulls[i].UpdatedAt, pulls[j].UpdatedAt
		switch {
		case tj == nil:
			return true
		case ti == nil:
			return false
		default:
			return ti.After(*tj)
		}
	})
	return &pulls[0]
}

// needsWrite reports whether any observation can mutate the document.
// active is index-aligned with obs. Items inside the activation grace are
// judged from the snapshot; a race here only costs one extra cycle, not a
// wrong write.
func needsWrite(obs []observation, active []queue.Item, now time.Time) bool {
	for i, o := range obs {
		switch o.state {
		case prMerged, prClosed:
			return true
		case prNone:
			if active[i].StartedAt == nil || now.Sub(*active[i].StartedAt) >= ActivationGrace {
				return true
			}
		case prOpen:
			if o.discovered {
				return true
			}
		}
	}
	return false
}

// applyTransform folds the observations into a fresh document. Items that
// moved queues since the observation are skipped; a later cycle sees
// their new state. Counters in the report are reset on entry so a
// conflict-retried application does not double-count.
func (r *Reconciler) applyTransform(obs []observation, now time.Time, report *Report) queue.Transform {
	return func(doc *queue.Document) error {
		report.Completed, report.Requeued, report.Failed, report.Orphaned = 0, 0, 0, 0
		report.CostSavings = 0

		maxRetries := r.MaxRetries
		if maxRetries <= 0 {
			maxRetries = doc.Config.MaxRetries
		}

		for _, o := range obs {
			it, st, ok := doc.Find(o.specID)
			if !ok || st != queue.StatusActive {
				continue
			}

			switch o.state {
			case prMerged:
				if o.savings > 0 && it.LastAttempt == nil {
					if err := queue.AddCostSavings(o.savings)(doc); err != nil {
						return err
					}
					report.CostSavings += o.savings
				}
				if err := queue.MarkCompleted(o.specID, now)(doc); err != nil {
					return err
				}
				report.Completed++

			case prClosed:
				e := queue.ItemError{
					Type:    queue.ErrorTypeSpec,
					Message: fmt.Sprintf("PR #%d closed without merging", o.prNumber),
				}
				if it.Attempts < maxRetries {
					if err := queue.RecordFailureAndRequeue(o.specID, e, now)(doc); err != nil {
						return err
					}
					report.Requeued++
				} else {
					reason := fmt.Sprintf("PR #%d closed without merging after %d attempts", o.prNumber, it.Attempts)
					if err := queue.MoveToManualIntervention(o.specID, reason, now)(doc); err != nil {
						return err
					}
					report.Failed++
				}

			case prNone:
				if it.StartedAt != nil && now.Sub(*it.StartedAt) < ActivationGrace {
					continue
				}
				e := queue.ItemError{
					Type:    queue.ErrorTypeInfra,
					Message: "activation orphaned: no PR appeared",
				}
				if err := queue.RequeueWithoutPenalty(o.specID, e, now)(doc); err != nil {
					return err
				}
				report.Orphaned++

			case prOpen:
				if o.discovered {
					err := queue.UpdateActivePR(o.specID, queue.PRInfo{
						Number: o.prNumber,
						URL:    o.prURL,
						Branch: o.branch,
					})(doc)
					if err != nil {
						return err
					}
				}
			}
		}

		doc.RebuildLocks()
		return nil
	}
}

// locksDrifted reports whether the lock sets disagree with the active
// queue. The document is scratch state owned by the caller.
func locksDrifted(doc *queue.Document) bool {
	files := append([]string(nil), doc.ActiveFiles...)
	specIDs := append([]string(nil), doc.ActiveSpecs...)
	doc.RebuildLocks()
	drifted := !sameSet(files, doc.ActiveFiles) || !sameSet(specIDs, doc.ActiveSpecs)
	doc.ActiveFiles = files
	doc.ActiveSpecs = specIDs
	return drifted
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
