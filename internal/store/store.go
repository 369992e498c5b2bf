// Package store persists the queue document. Two backends implement the
// same interface: the remote store keeps the document on a dedicated branch
// through the GitHub contents API, and the local store keeps it in a file
// for development runs. Both expose compare-and-swap writes through an
// opaque revision token, so the updater's retry loop is backend-agnostic.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
)

// RevisionedDocument pairs a document with the revision token it was read
// at. An empty revision means the document does not exist remotely yet; a
// write with an empty revision creates it.
type RevisionedDocument struct {
	Doc      *queue.Document
	Revision string
}

// DocumentStore reads and conditionally writes the state document.
type DocumentStore interface {
	// Read returns the current document and its revision. Returns
	// ErrNotFound when no document exists.
	Read(ctx context.Context) (RevisionedDocument, error)

	// Write persists the document if the given revision still matches the
	// stored copy, returning the new revision. Returns ErrRevisionConflict
	// when it does not. An empty revision creates the document and fails
	// with ErrRevisionConflict if one appeared in the meantime.
	Write(ctx context.Context, doc *queue.Document, revision string) (string, error)
}

// ReadOrInit reads the document, translating a missing document into a
// fresh empty one with an empty revision so the subsequent write creates it.
func ReadOrInit(ctx context.Context, s DocumentStore) (RevisionedDocument, error) {
	rd, err := s.Read(ctx)
	if err == nil {
		return rd, nil
	}
	if errors.Is(err, ErrNotFound) {
		return RevisionedDocument{Doc: queue.NewDocument()}, nil
	}
	return RevisionedDocument{}, err
}

// encodeDocument renders the canonical document bytes: two-space indent
// with a trailing newline, so state-branch commits diff cleanly.
func encodeDocument(doc *queue.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode state document: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeDocument parses document bytes.
func decodeDocument(data []byte) (*queue.Document, error) {
	var doc queue.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	return &doc, nil
}

// Mode selects a persistence backend. Exactly one of the concrete types
// below is chosen at startup; nothing downstream consults the environment.
type Mode interface {
	fmt.Stringer
	isMode()
}

// RemoteMode stores the document on a branch of a GitHub repository.
type RemoteMode struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
	Path   string
}

func (RemoteMode) isMode() {}

func (m RemoteMode) String() string {
	return fmt.Sprintf("remote:%s/%s@%s:%s", m.Owner, m.Repo, m.Branch, m.Path)
}

// LocalMode stores the document in a file.
type LocalMode struct {
	Path string
}

func (LocalMode) isMode() {}

func (m LocalMode) String() string {
	return "local:" + m.Path
}

// Open builds the store for a mode.
func Open(mode Mode) (DocumentStore, error) {
	switch m := mode.(type) {
	case RemoteMode:
		client := github.NewClient(m.Token, m.Owner, m.Repo)
		return NewRemote(client, m.Branch, m.Path), nil
	case LocalMode:
		return NewLocal(m.Path), nil
	default:
		return nil, fmt.Errorf("unsupported persistence mode %T", mode)
	}
}
