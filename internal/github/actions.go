package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// workflowRunsResponse is the actions API list shape.
type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// ListWorkflowRuns retrieves workflow runs for a branch, newest first.
// Pass an empty status to list runs in any state.
func (c *Client) ListWorkflowRuns(ctx context.Context, branch, status string) ([]WorkflowRun, error) {
	params := map[string]string{
		"per_page": strconv.Itoa(MaxPageSize),
	}
	if branch != "" {
		params["branch"] = branch
	}
	if status != "" {
		params["status"] = status
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/actions/runs", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	var runs workflowRunsResponse
	if err := json.Unmarshal(respBody, &runs); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs response: %w", err)
	}

	return runs.WorkflowRuns, nil
}

// WorkflowRunLogs downloads the log archive for a run. GitHub answers with
// a redirect to a zip; the returned bytes are the zip archive.
func (c *Client) WorkflowRunLogs(ctx context.Context, runID int64) ([]byte, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/actions/runs/"+strconv.FormatInt(runID, 10)+"/logs", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download logs for run %d: %w", runID, err)
	}
	return respBody, nil
}
