package costs

import (
	"context"
	"errors"
	"testing"

	"github.com/specq/specq/internal/github"
)

type fakeRunSource struct {
	runs     []github.WorkflowRun
	listErr  error
	logs     map[int64][]byte
	logErr   map[int64]error
	logCalls int
}

func (f *fakeRunSource) ListWorkflowRuns(ctx context.Context, branch, status string) ([]github.WorkflowRun, error) {
	return f.runs, f.listErr
}

func (f *fakeRunSource) WorkflowRunLogs(ctx context.Context, runID int64) ([]byte, error) {
	f.logCalls++
	if err := f.logErr[runID]; err != nil {
		return nil, err
	}
	return f.logs[runID], nil
}

func usageArchive(t *testing.T, cost string) []byte {
	t.Helper()
	return buildArchive(t, map[string]string{
		"1_pipeline.txt": "[usage] cost_usd=" + cost + " tokens=10000\n",
	})
}

func TestEstimateAveragesRecentRuns(t *testing.T) {
	src := &fakeRunSource{
		runs: []github.WorkflowRun{{ID: 101}, {ID: 102}},
		logs: map[int64][]byte{
			101: usageArchive(t, "2.0"),
			102: usageArchive(t, "3.0"),
		},
	}
	e := &Estimator{Client: src}

	if got := e.EstimateRunCost(context.Background()); got != 2.5 {
		t.Errorf("EstimateRunCost() = %v, want 2.5", got)
	}
}

func TestEstimateFallback(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeRunSource
	}{
		{"list error", &fakeRunSource{listErr: errors.New("api down")}},
		{"no runs", &fakeRunSource{}},
		{"log download fails", &fakeRunSource{
			runs:   []github.WorkflowRun{{ID: 101}},
			logErr: map[int64]error{101: errors.New("timeout")},
		}},
		{"archive unreadable", &fakeRunSource{
			runs: []github.WorkflowRun{{ID: 101}},
			logs: map[int64][]byte{101: []byte("not a zip")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Estimator{Client: tt.src}
			if got := e.EstimateRunCost(context.Background()); got != DefaultFallbackCost {
				t.Errorf("EstimateRunCost() = %v, want fallback %v", got, DefaultFallbackCost)
			}
		})
	}
}

func TestEstimateCustomFallback(t *testing.T) {
	e := &Estimator{Client: &fakeRunSource{}, Fallback: 4.25}
	if got := e.EstimateRunCost(context.Background()); got != 4.25 {
		t.Errorf("EstimateRunCost() = %v, want 4.25", got)
	}
}

func TestEstimateSampleCap(t *testing.T) {
	src := &fakeRunSource{logs: map[int64][]byte{}}
	for i := int64(1); i <= 8; i++ {
		src.runs = append(src.runs, github.WorkflowRun{ID: i})
		src.logs[i] = usageArchive(t, "1.0")
	}
	e := &Estimator{Client: src}

	if got := e.EstimateRunCost(context.Background()); got != 1.0 {
		t.Errorf("EstimateRunCost() = %v, want 1.0", got)
	}
	if src.logCalls != DefaultSampleSize {
		t.Errorf("log downloads = %d, want capped at %d", src.logCalls, DefaultSampleSize)
	}
}

func TestEstimateSkipsFailedDownloads(t *testing.T) {
	src := &fakeRunSource{
		runs: []github.WorkflowRun{{ID: 101}, {ID: 102}},
		logs: map[int64][]byte{
			102: usageArchive(t, "3.0"),
		},
		logErr: map[int64]error{101: errors.New("timeout")},
	}
	e := &Estimator{Client: src}

	if got := e.EstimateRunCost(context.Background()); got != 3.0 {
		t.Errorf("EstimateRunCost() = %v, want average from the readable run", got)
	}
}

func TestEstimateNilClient(t *testing.T) {
	e := &Estimator{}
	if got := e.EstimateRunCost(context.Background()); got != DefaultFallbackCost {
		t.Errorf("EstimateRunCost() = %v, want fallback", got)
	}
}
