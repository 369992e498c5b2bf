package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// contentsResponse is the contents API shape for a single file.
type contentsResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
}

// putContentsResponse is the response to a contents PUT.
type putContentsResponse struct {
	Content *struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// contentsURL builds the contents endpoint for a repository path.
func (c *Client) contentsURL(path string, params map[string]string) string {
	escaped := url.PathEscape(path)
	// PathEscape encodes "/" too; the API wants path separators intact.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return c.buildURL("/repos/"+c.repoPath()+"/contents/"+escaped, params)
}

// GetContents fetches a file from the given branch. The returned SHA is the
// blob sha the next PutContents must present. Returns ErrNotFound when the
// file or branch does not exist.
func (c *Client) GetContents(ctx context.Context, path, branch string) (*FileContent, error) {
	params := map[string]string{}
	if branch != "" {
		params["ref"] = branch
	}

	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.contentsURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contents of %s: %w", path, err)
	}

	var file contentsResponse
	if err := json.Unmarshal(respBody, &file); err != nil {
		return nil, fmt.Errorf("failed to parse contents response: %w", err)
	}
	if file.Type != "file" {
		return nil, fmt.Errorf("contents of %s is %q, not a file", path, file.Type)
	}

	// The API base64-encodes file bodies with embedded newlines.
	raw := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, file.Content)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode contents of %s: %w", path, err)
	}

	return &FileContent{Path: file.Path, SHA: file.SHA, Content: decoded}, nil
}

// PutContents creates or updates a file on the given branch and returns the
// new blob sha. Pass the sha from the last read for an update; pass an empty
// sha to create the file. GitHub rejects the write with 409 or 422 when the
// sha no longer matches the branch head's copy.
func (c *Client) PutContents(ctx context.Context, path, branch, message string, content []byte, sha string) (string, error) {
	reqBody := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if branch != "" {
		reqBody["branch"] = branch
	}
	if sha != "" {
		reqBody["sha"] = sha
	}

	respBody, _, err := c.doRequest(ctx, http.MethodPut, c.contentsURL(path, nil), reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to write contents of %s: %w", path, err)
	}

	var put putContentsResponse
	if err := json.Unmarshal(respBody, &put); err != nil {
		return "", fmt.Errorf("failed to parse contents write response: %w", err)
	}
	if put.Content == nil || put.Content.SHA == "" {
		return "", fmt.Errorf("contents write response for %s carried no sha", path)
	}

	return put.Content.SHA, nil
}
