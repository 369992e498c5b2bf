package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestFetchIssuesByLabel verifies label filtering and PR exclusion.
func TestFetchIssuesByLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labels"); got != "tdd:manual" {
			t.Errorf("labels param = %q", got)
		}
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state param = %q", got)
		}
		json.NewEncoder(w).Encode([]Issue{
			{Number: 1, Title: "stuck spec"},
			{Number: 2, Title: "a PR", PullRequest: &PullRef{URL: "x"}},
		})
	}))
	defer server.Close()

	client := NewClient("token", "owner", "repo").WithBaseURL(server.URL)
	issues, err := client.FetchIssuesByLabel(context.Background(), "tdd:manual", "open")
	if err != nil {
		t.Fatalf("FetchIssuesByLabel() error = %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 1 {
		t.Errorf("issues = %v, want just #1", issues)
	}
}

// TestLabelMutations verifies the three label write operations.
func TestLabelMutations(t *testing.T) {
	type call struct {
		method string
		path   string
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient("token", "owner", "repo").WithBaseURL(server.URL)
	ctx := context.Background()

	if err := client.AddLabels(ctx, 7, []string{"tdd:active"}); err != nil {
		t.Fatalf("AddLabels() error = %v", err)
	}
	if err := client.RemoveLabel(ctx, 7, "tdd:pending"); err != nil {
		t.Fatalf("RemoveLabel() error = %v", err)
	}
	if err := client.SetLabels(ctx, 7, []string{"tdd:completed"}); err != nil {
		t.Fatalf("SetLabels() error = %v", err)
	}

	want := []call{
		{http.MethodPost, "/repos/owner/repo/issues/7/labels"},
		{http.MethodDelete, "/repos/owner/repo/issues/7/labels/tdd:pending"},
		{http.MethodPut, "/repos/owner/repo/issues/7/labels"},
	}
	if len(calls) != len(want) {
		t.Fatalf("saw %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}
