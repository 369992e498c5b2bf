package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/queue"
)

// fakeContents emulates the contents API for one file with sha-checked
// writes, which is all the remote store touches.
type fakeContents struct {
	mu      sync.Mutex
	data    []byte
	sha     string
	counter int

	lastMessage string
	puts        int

	// failPuts short-circuits the next N writes with failStatus.
	failPuts   int
	failStatus int
}

func (f *fakeContents) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if f.data == nil {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message": "Not Found"}`)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type":     "file",
				"encoding": "base64",
				"path":     ".tdd/queue.json",
				"sha":      f.sha,
				"content":  base64.StdEncoding.EncodeToString(f.data),
			})

		case http.MethodPut:
			f.puts++
			if f.failPuts > 0 {
				f.failPuts--
				w.WriteHeader(f.failStatus)
				fmt.Fprint(w, `{"message": "injected failure"}`)
				return
			}
			var req struct {
				Message string `json:"message"`
				Content string `json:"content"`
				Branch  string `json:"branch"`
				SHA     string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			f.lastMessage = req.Message

			if f.data == nil && req.SHA != "" {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"message": "queue.json does not exist"}`)
				return
			}
			if f.data != nil && req.SHA != f.sha {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"message": "queue.json does not match"}`)
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.data = decoded
			f.counter++
			f.sha = fmt.Sprintf("blob-%d", f.counter)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"content": map[string]interface{}{"sha": f.sha},
			})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestRemote(t *testing.T) (*Remote, *fakeContents) {
	t.Helper()
	fake := &fakeContents{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client := github.NewClient("token", "owner", "repo").WithBaseURL(server.URL)
	return NewRemote(client, "tdd-state", ".tdd/queue.json"), fake
}

func TestRemoteCommitMessage(t *testing.T) {
	r, fake := newTestRemote(t)
	ctx := context.Background()

	if _, err := r.Write(ctx, queue.NewDocument(), ""); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(fake.lastMessage, "[skip ci]") {
		t.Errorf("commit message = %q, want skip-ci marker", fake.lastMessage)
	}

	r.CommitMessage = "manual requeue"
	rd, err := r.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write(ctx, rd.Doc, rd.Revision); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if fake.lastMessage != "manual requeue" {
		t.Errorf("commit message = %q, want override", fake.lastMessage)
	}
}

func TestRemoteWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  string
		retryable bool
	}{
		{"409 is a conflict", http.StatusConflict, "conflict", false},
		{"500 is transient transport", http.StatusInternalServerError, "transport", true},
		{"401 is permanent transport", http.StatusUnauthorized, "transport", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, fake := newTestRemote(t)
			ctx := context.Background()
			if _, err := r.Write(ctx, queue.NewDocument(), ""); err != nil {
				t.Fatalf("create: %v", err)
			}
			rd, err := r.Read(ctx)
			if err != nil {
				t.Fatal(err)
			}

			fake.failPuts = 1
			fake.failStatus = tt.status
			_, err = r.Write(ctx, rd.Doc, rd.Revision)

			switch tt.wantKind {
			case "conflict":
				if !errors.Is(err, ErrRevisionConflict) {
					t.Errorf("error = %v, want ErrRevisionConflict", err)
				}
			case "transport":
				var te *TransportError
				if !errors.As(err, &te) {
					t.Fatalf("error = %v, want TransportError", err)
				}
				if te.Retryable() != tt.retryable {
					t.Errorf("Retryable() = %v, want %v", te.Retryable(), tt.retryable)
				}
			}
		})
	}
}

func TestIsShaMismatch(t *testing.T) {
	tests := []struct {
		name string
		err  *github.APIError
		want bool
	}{
		{"409", &github.APIError{StatusCode: 409, Message: "conflict"}, true},
		{"422 sha mismatch", &github.APIError{StatusCode: 422, Message: "queue.json does not match"}, true},
		{"422 expected sha", &github.APIError{StatusCode: 422, Message: `"sha" wasn't supplied. Expected: abc123`}, true},
		{"422 validation", &github.APIError{StatusCode: 422, Message: "Invalid request. Missing field."}, false},
		{"404", &github.APIError{StatusCode: 404, Message: "Not Found"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isShaMismatch(tt.err); got != tt.want {
				t.Errorf("isShaMismatch(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRemoteUpdaterRecoversFromRace(t *testing.T) {
	r, fake := newTestRemote(t)
	ctx := context.Background()

	if _, err := r.Write(ctx, queue.NewDocument(), ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another writer commits between our read and write once.
	fake.failPuts = 1
	fake.failStatus = http.StatusConflict

	u := instantUpdater(r)
	doc, err := u.Update(ctx, queue.Enqueue(queue.NewItem("SPEC-001", "a.spec.json", "", 1, testNow)))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(doc.Queue.Pending) != 1 {
		t.Errorf("pending = %d, want 1", len(doc.Queue.Pending))
	}
	if fake.puts != 3 {
		t.Errorf("server saw %d puts, want 3 (create, conflicted, retried)", fake.puts)
	}
}
