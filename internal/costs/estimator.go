package costs

import (
	"context"

	"github.com/specq/specq/internal/github"
)

// DefaultSampleSize is how many recent runs the estimator averages over.
const DefaultSampleSize = 5

// RunSource is the slice of the actions API the estimator reads.
type RunSource interface {
	ListWorkflowRuns(ctx context.Context, branch, status string) ([]github.WorkflowRun, error)
	WorkflowRunLogs(ctx context.Context, runID int64) ([]byte, error)
}

// Estimator prices one pipeline run from the recent average. Every
// failure path degrades to the fallback price; cost estimation is
// advisory and must never block reconciliation.
type Estimator struct {
	Client RunSource

	// Branch restricts the sample to one branch. Empty samples all runs.
	Branch string

	// Fallback is returned when no usage data can be had.
	// Defaults to DefaultFallbackCost.
	Fallback float64

	// Sample caps how many run logs are downloaded.
	// Defaults to DefaultSampleSize.
	Sample int
}

func (e *Estimator) fallback() float64 {
	if e.Fallback != 0 {
		return e.Fallback
	}
	return DefaultFallbackCost
}

func (e *Estimator) sample() int {
	if e.Sample > 0 {
		return e.Sample
	}
	return DefaultSampleSize
}

// EstimateRunCost returns the expected cost of one more run in USD.
func (e *Estimator) EstimateRunCost(ctx context.Context) float64 {
	if e.Client == nil {
		return e.fallback()
	}
	runs, err := e.Client.ListWorkflowRuns(ctx, e.Branch, "completed")
	if err != nil {
		return e.fallback()
	}

	var sum Summary
	sampled := 0
	for _, run := range runs {
		if sampled >= e.sample() {
			break
		}
		sampled++
		data, err := e.Client.WorkflowRunLogs(ctx, run.ID)
		if err != nil {
			continue
		}
		entry, err := ParseLogArchive(data)
		if err != nil {
			continue
		}
		sum.merge(entry)
	}
	if sum.Runs == 0 {
		return e.fallback()
	}
	return sum.AverageCostUSD
}
