package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/specq/specq/internal/lockfile"
	"github.com/specq/specq/internal/queue"
)

// Local stores the document in a single file. The revision token is the
// SHA-256 of the file bytes, checked again under an flock before each
// write, which gives the same compare-and-swap contract as the remote
// store for processes sharing one machine.
type Local struct {
	path string
	now  func() time.Time
}

// NewLocal builds a file-backed store.
func NewLocal(path string) *Local {
	return &Local{path: path, now: time.Now}
}

// revisionOf hashes document bytes into a revision token.
func revisionOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// lockPath is the sibling lock file guarding writes.
func (l *Local) lockPath() string {
	return l.path + ".lock"
}

// Read loads and decodes the document file.
func (l *Local) Read(ctx context.Context) (RevisionedDocument, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return RevisionedDocument{}, fmt.Errorf("%w: %s", ErrNotFound, l.path)
	}
	if err != nil {
		return RevisionedDocument{}, &TransportError{Op: "read", Err: err}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return RevisionedDocument{}, err
	}
	return RevisionedDocument{Doc: doc, Revision: revisionOf(data)}, nil
}

// Write persists the document if the file still hashes to the given
// revision. The check-and-replace runs under an flock so two local
// processes cannot interleave between the check and the rename.
func (l *Local) Write(ctx context.Context, doc *queue.Document, revision string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return "", &TransportError{Op: "write", Err: err}
	}

	lock, err := lockfile.Acquire(l.lockPath())
	if err != nil {
		return "", &TransportError{Op: "write", Err: err}
	}
	defer lock.Release()

	current, err := os.ReadFile(l.path)
	switch {
	case os.IsNotExist(err):
		if revision != "" {
			return "", fmt.Errorf("%w: file vanished under revision %s", ErrRevisionConflict, revision)
		}
	case err != nil:
		return "", &TransportError{Op: "write", Err: err}
	default:
		if revision == "" {
			return "", fmt.Errorf("%w: document already exists", ErrRevisionConflict)
		}
		if got := revisionOf(current); got != revision {
			return "", fmt.Errorf("%w: revision %s is stale", ErrRevisionConflict, revision)
		}
	}

	doc.LastUpdated = l.now().UTC()
	payload, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	// Temp file plus rename in the same directory keeps readers from ever
	// seeing a half-written document.
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return "", &TransportError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", &TransportError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", &TransportError{Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return "", &TransportError{Op: "write", Err: err}
	}

	return revisionOf(payload), nil
}
