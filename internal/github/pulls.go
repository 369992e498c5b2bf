package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// GetPull retrieves a single pull request by number.
func (c *Client) GetPull(ctx context.Context, number int) (*PullRequest, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR #%d: %w", number, err)
	}

	var pr PullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse PR response: %w", err)
	}

	return &pr, nil
}

// ListOpenPulls retrieves all open pull requests, following pagination.
func (c *Client) ListOpenPulls(ctx context.Context) ([]PullRequest, error) {
	var all []PullRequest
	page := 1

	for {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		params := map[string]string{
			"state":    "open",
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list open PRs: %w", err)
		}

		var pulls []PullRequest
		if err := json.Unmarshal(respBody, &pulls); err != nil {
			return nil, fmt.Errorf("failed to parse PR list response: %w", err)
		}
		all = append(all, pulls...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return all, nil
}

// ListOpenPullsWithLabel retrieves open pull requests carrying the given
// label. The pulls endpoint has no label filter, so this filters the open
// set client-side.
func (c *Client) ListOpenPullsWithLabel(ctx context.Context, label string) ([]PullRequest, error) {
	pulls, err := c.ListOpenPulls(ctx)
	if err != nil {
		return nil, err
	}

	var matched []PullRequest
	for i := range pulls {
		if pulls[i].HasLabel(label) {
			matched = append(matched, pulls[i])
		}
	}
	return matched, nil
}

// ListPullsForBranch retrieves pull requests in any state whose head is
// the given branch. The head filter is server-side and exact, so a single
// page covers every PR a work branch can realistically accumulate.
func (c *Client) ListPullsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	params := map[string]string{
		"state":    "all",
		"head":     c.Owner + ":" + branch,
		"per_page": strconv.Itoa(MaxPageSize),
	}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}

	var pulls []PullRequest
	if err := json.Unmarshal(respBody, &pulls); err != nil {
		return nil, fmt.Errorf("failed to parse PR list response: %w", err)
	}
	return pulls, nil
}

// FindPullsByBranchPrefix retrieves open pull requests whose head branch
// starts with the given prefix (for example "tdd/").
func (c *Client) FindPullsByBranchPrefix(ctx context.Context, prefix string) ([]PullRequest, error) {
	pulls, err := c.ListOpenPulls(ctx)
	if err != nil {
		return nil, err
	}

	var matched []PullRequest
	for i := range pulls {
		if strings.HasPrefix(pulls[i].Head.Ref, prefix) {
			matched = append(matched, pulls[i])
		}
	}
	return matched, nil
}
