package store

import (
	"context"
	"time"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
)

// defaultCommitMessage is used for state-branch commits. The skip-ci marker
// keeps state updates from triggering the pipeline that writes them.
const defaultCommitMessage = "Update queue state [skip ci]"

// Remote stores the document on a branch via the GitHub contents API. The
// file's blob sha is the revision token; GitHub rejects writes whose sha no
// longer matches the branch head, which is the whole concurrency story.
type Remote struct {
	client *github.Client
	branch string
	path   string

	// CommitMessage overrides the state-branch commit message.
	CommitMessage string

	now func() time.Time
}

// NewRemote builds a remote store for a document path on a branch.
func NewRemote(client *github.Client, branch, path string) *Remote {
	return &Remote{
		client: client,
		branch: branch,
		path:   path,
		now:    time.Now,
	}
}

// Read fetches and decodes the document at the branch head.
func (r *Remote) Read(ctx context.Context) (RevisionedDocument, error) {
	file, err := r.client.GetContents(ctx, r.path, r.branch)
	if err != nil {
		return RevisionedDocument{}, mapReadError(err)
	}
	doc, err := decodeDocument(file.Content)
	if err != nil {
		return RevisionedDocument{}, err
	}
	return RevisionedDocument{Doc: doc, Revision: file.SHA}, nil
}

// Write commits the document if revision still matches the branch head's
// copy. The returned revision is the new blob sha.
func (r *Remote) Write(ctx context.Context, doc *queue.Document, revision string) (string, error) {
	doc.LastUpdated = r.now().UTC()
	payload, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	message := r.CommitMessage
	if message == "" {
		message = defaultCommitMessage
	}

	sha, err := r.client.PutContents(ctx, r.path, r.branch, message, payload, revision)
	if err != nil {
		return "", mapWriteError(err)
	}
	return sha, nil
}
