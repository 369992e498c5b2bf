package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/store"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeTracker serves canned PR lookups.
type fakeTracker struct {
	mu       sync.Mutex
	pulls    map[int]*github.PullRequest
	branches map[string][]github.PullRequest
	failPR   map[int]error
}

func (f *fakeTracker) GetPull(ctx context.Context, number int) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failPR[number]; ok {
		return nil, err
	}
	pr, ok := f.pulls[number]
	if !ok {
		return nil, &github.APIError{StatusCode: 404, Message: "Not Found"}
	}
	return pr, nil
}

func (f *fakeTracker) ListPullsForBranch(ctx context.Context, branch string) ([]github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[branch], nil
}

type fixedEstimator struct{ cost float64 }

func (f fixedEstimator) EstimateRunCost(ctx context.Context) float64 { return f.cost }

// testState is a seeded local store plus the revision the seed produced,
// so tests can tell a no-op pass from a write.
type testState struct {
	store   *store.Local
	seedRev string
}

func (ts *testState) doc(t *testing.T) *queue.Document {
	t.Helper()
	rd, err := ts.store.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rd.Doc
}

func (ts *testState) wrote(t *testing.T) bool {
	t.Helper()
	rd, err := ts.store.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rd.Revision != ts.seedRev
}

// newTestReconciler seeds a local store with the given document and
// returns a reconciler over it.
func newTestReconciler(t *testing.T, doc *queue.Document, tracker *fakeTracker) (*Reconciler, *testState) {
	t.Helper()
	s := store.NewLocal(filepath.Join(t.TempDir(), "queue.json"))
	rev, err := s.Write(context.Background(), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	return &Reconciler{
		Updater: store.NewUpdater(s),
		Tracker: tracker,
		Now:     func() time.Time { return testNow },
	}, &testState{store: s, seedRev: rev}
}

// activeItem builds an item activated ago before testNow, optionally
// attached to a PR.
func activeItem(specID string, prNumber int, ago time.Duration) queue.Item {
	it := queue.NewItem(specID, specID+".spec.json", "", 1, testNow.Add(-ago-time.Minute))
	started := testNow.Add(-ago)
	it.Status = queue.StatusActive
	it.StartedAt = &started
	if prNumber > 0 {
		n := prNumber
		it.PRNumber = &n
		it.Branch = "tdd/" + specID
	}
	return it
}

func seedActive(items ...queue.Item) *queue.Document {
	doc := queue.NewDocument()
	doc.Queue.Active = append(doc.Queue.Active, items...)
	doc.RebuildLocks()
	return doc
}

func openPR(number int, updatedAgo time.Duration) *github.PullRequest {
	updated := testNow.Add(-updatedAgo)
	return &github.PullRequest{Number: number, State: "open", UpdatedAt: &updated}
}

func mergedPR(number int) *github.PullRequest {
	merged := testNow.Add(-5 * time.Minute)
	return &github.PullRequest{Number: number, State: "closed", MergedAt: &merged, UpdatedAt: &merged}
}

func closedPR(number int) *github.PullRequest {
	closed := testNow.Add(-5 * time.Minute)
	return &github.PullRequest{Number: number, State: "closed", ClosedAt: &closed, UpdatedAt: &closed}
}

func TestRunEmptyQueue(t *testing.T) {
	r, ts := newTestReconciler(t, queue.NewDocument(), &fakeTracker{})
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Checked != 0 {
		t.Errorf("Checked = %d, want 0", report.Checked)
	}
	if ts.wrote(t) {
		t.Error("empty pass still wrote the document")
	}
}

func TestRunMergedPR(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 42, 30*time.Minute))
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: mergedPR(42)}}
	r, ts := newTestReconciler(t, doc, tracker)
	r.Estimator = fixedEstimator{cost: 2.5}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1", report.Completed)
	}
	if report.CostSavings != 2.5 {
		t.Errorf("CostSavings = %v, want 2.5 for an externally merged item", report.CostSavings)
	}

	after := ts.doc(t)
	if len(after.Queue.Completed) != 1 || len(after.Queue.Active) != 0 {
		t.Fatalf("queues = %d completed / %d active, want 1/0", len(after.Queue.Completed), len(after.Queue.Active))
	}
	if len(after.ActiveFiles) != 0 || len(after.ActiveSpecs) != 0 {
		t.Errorf("locks not released: files=%v specs=%v", after.ActiveFiles, after.ActiveSpecs)
	}
	if after.Metrics.CostSavingsFromSkips != 2.5 {
		t.Errorf("CostSavingsFromSkips = %v, want 2.5", after.Metrics.CostSavingsFromSkips)
	}
	if err := after.Validate(); err != nil {
		t.Errorf("document invalid after sync: %v", err)
	}
}

func TestRunMergedAfterLocalAttempt(t *testing.T) {
	it := activeItem("SPEC-001", 42, 30*time.Minute)
	attempted := testNow.Add(-10 * time.Minute)
	it.LastAttempt = &attempted

	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: mergedPR(42)}}
	r, ts := newTestReconciler(t, seedActive(it), tracker)
	r.Estimator = fixedEstimator{cost: 2.5}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1", report.Completed)
	}
	// The run happened locally, so nothing was saved by skipping it.
	if report.CostSavings != 0 {
		t.Errorf("CostSavings = %v, want 0", report.CostSavings)
	}

	after := ts.doc(t)
	if after.Metrics.CostSavingsFromSkips != 0 {
		t.Errorf("CostSavingsFromSkips = %v, want 0", after.Metrics.CostSavingsFromSkips)
	}
}

func TestRunClosedPRRequeues(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 42, 30*time.Minute))
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: closedPR(42)}}
	r, ts := newTestReconciler(t, doc, tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Requeued != 1 || report.Failed != 0 {
		t.Errorf("Requeued = %d, Failed = %d, want 1, 0", report.Requeued, report.Failed)
	}

	after := ts.doc(t)
	if len(after.Queue.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(after.Queue.Pending))
	}
	it := after.Queue.Pending[0]
	if it.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (penalized retry)", it.Attempts)
	}
	if len(it.Errors) != 1 || it.Errors[0].Type != queue.ErrorTypeSpec {
		t.Errorf("Errors = %+v, want one spec error", it.Errors)
	}
	if !strings.Contains(it.Errors[0].Message, "#42") {
		t.Errorf("error message %q does not name the PR", it.Errors[0].Message)
	}
}

func TestRunClosedPRAtBudgetFails(t *testing.T) {
	it := activeItem("SPEC-001", 42, 30*time.Minute)
	it.Attempts = queue.DefaultMaxRetries

	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: closedPR(42)}}
	r, ts := newTestReconciler(t, seedActive(it), tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed != 1 || report.Requeued != 0 {
		t.Errorf("Failed = %d, Requeued = %d, want 1, 0", report.Failed, report.Requeued)
	}

	after := ts.doc(t)
	if len(after.Queue.Failed) != 1 {
		t.Fatalf("failed queue = %d, want 1", len(after.Queue.Failed))
	}
	got := after.Queue.Failed[0]
	if !got.RequiresAction {
		t.Error("RequiresAction = false, want true")
	}
	if after.Metrics.ManualInterventionCount != 1 {
		t.Errorf("ManualInterventionCount = %d, want 1", after.Metrics.ManualInterventionCount)
	}
}

func TestRunOpenPRLeavesActive(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 42, 30*time.Minute))
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: openPR(42, 5*time.Minute)}}
	r, ts := newTestReconciler(t, doc, tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Completed+report.Requeued+report.Failed+report.Orphaned != 0 {
		t.Errorf("report mutated something: %+v", report)
	}
	if len(report.StalePRs) != 0 {
		t.Errorf("StalePRs = %+v, want none for a fresh PR", report.StalePRs)
	}

	if len(ts.doc(t).Queue.Active) != 1 {
		t.Error("active item moved by a healthy open PR")
	}
	if ts.wrote(t) {
		t.Error("no-op pass still wrote the document")
	}
}

func TestRunStalePRFlagged(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 42, 3*time.Hour))
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: openPR(42, 2*time.Hour)}}
	r, ts := newTestReconciler(t, doc, tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.StalePRs) != 1 {
		t.Fatalf("StalePRs = %+v, want 1", report.StalePRs)
	}
	flag := report.StalePRs[0]
	if flag.SpecID != "SPEC-001" || flag.PRNumber != 42 || flag.IdleMinutes != 120 {
		t.Errorf("StalePR = %+v", flag)
	}

	// Stale PRs are flagged, never acted on.
	if len(ts.doc(t).Queue.Active) != 1 {
		t.Error("stale PR moved its item out of active")
	}
}

func TestRunOrphanedActivation(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 0, 20*time.Minute))
	r, ts := newTestReconciler(t, doc, &fakeTracker{})

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Orphaned != 1 {
		t.Errorf("Orphaned = %d, want 1", report.Orphaned)
	}

	after := ts.doc(t)
	if len(after.Queue.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(after.Queue.Pending))
	}
	it := after.Queue.Pending[0]
	if it.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (orphaning is not the item's fault)", it.Attempts)
	}
	if len(it.Errors) != 1 || it.Errors[0].Type != queue.ErrorTypeInfra {
		t.Errorf("Errors = %+v, want one infra error", it.Errors)
	}
}

func TestRunActivationGrace(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 0, 5*time.Minute))
	r, ts := newTestReconciler(t, doc, &fakeTracker{})

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Orphaned != 0 {
		t.Errorf("Orphaned = %d, want 0 inside the grace window", report.Orphaned)
	}

	if len(ts.doc(t).Queue.Active) != 1 {
		t.Error("item requeued inside the grace window")
	}
	if ts.wrote(t) {
		t.Error("in-grace pass still wrote the document")
	}
}

func TestRunDiscoversBranchPR(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 0, 20*time.Minute))
	tracker := &fakeTracker{branches: map[string][]github.PullRequest{
		"tdd/SPEC-001": {{Number: 7, State: "open", HTMLURL: "https://example.com/pr/7", Head: github.BranchRef{Ref: "tdd/SPEC-001"}, UpdatedAt: &testNow}},
	}}
	r, ts := newTestReconciler(t, doc, tracker)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	after := ts.doc(t)
	if len(after.Queue.Active) != 1 {
		t.Fatalf("active = %d, want 1", len(after.Queue.Active))
	}
	it := after.Queue.Active[0]
	if it.PRNumber == nil || *it.PRNumber != 7 {
		t.Fatalf("PRNumber = %v, want 7 recorded from branch search", it.PRNumber)
	}
	if it.Branch != "tdd/SPEC-001" || it.PRURL != "https://example.com/pr/7" {
		t.Errorf("Branch = %q, PRURL = %q", it.Branch, it.PRURL)
	}
}

func TestRunBranchPRMerged(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 0, 20*time.Minute))
	tracker := &fakeTracker{branches: map[string][]github.PullRequest{
		"tdd/SPEC-001": {*mergedPR(7)},
	}}
	r, ts := newTestReconciler(t, doc, tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1 via branch search", report.Completed)
	}

	if got := len(ts.doc(t).Queue.Completed); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
}

func TestRunLookupFailureIsAdvisory(t *testing.T) {
	doc := seedActive(
		activeItem("SPEC-001", 42, 30*time.Minute),
		activeItem("SPEC-002", 43, 30*time.Minute),
	)
	tracker := &fakeTracker{
		pulls:  map[int]*github.PullRequest{43: mergedPR(43)},
		failPR: map[int]error{42: errors.New("boom")},
	}
	r, ts := newTestReconciler(t, doc, tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "SPEC-001") {
		t.Errorf("Warnings = %v, want one naming SPEC-001", report.Warnings)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1; the healthy item must still sync", report.Completed)
	}

	after := ts.doc(t)
	if len(after.Queue.Active) != 1 || after.Queue.Active[0].SpecID != "SPEC-001" {
		t.Errorf("active after = %+v, want SPEC-001 untouched", after.Queue.Active)
	}
}

func TestRunRepairsLockDrift(t *testing.T) {
	doc := seedActive(activeItem("SPEC-001", 42, 30*time.Minute))
	doc.ActiveFiles = append(doc.ActiveFiles, "ghost.spec.json")
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{42: openPR(42, time.Minute)}}
	r, ts := newTestReconciler(t, doc, tracker)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	after := ts.doc(t)
	if err := after.Validate(); err != nil {
		t.Errorf("lock drift not repaired: %v", err)
	}
	if after.HasActiveFile("ghost.spec.json") {
		t.Error("ghost lock survived the sync pass")
	}
}

func TestRunChecksManyItems(t *testing.T) {
	var items []queue.Item
	tracker := &fakeTracker{pulls: map[int]*github.PullRequest{}}
	for i := 1; i <= 9; i++ {
		items = append(items, activeItem(fmt.Sprintf("SPEC-%03d", i), 100+i, 30*time.Minute))
		tracker.pulls[100+i] = mergedPR(100 + i)
	}
	r, ts := newTestReconciler(t, seedActive(items...), tracker)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Checked != 9 || report.Completed != 9 {
		t.Errorf("Checked = %d, Completed = %d, want 9, 9", report.Checked, report.Completed)
	}

	after := ts.doc(t)
	if len(after.Queue.Completed) != 9 || len(after.Queue.Active) != 0 {
		t.Errorf("queues = %d completed / %d active, want 9/0", len(after.Queue.Completed), len(after.Queue.Active))
	}
}
