package queue

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  bool
	}{
		{StatusPending, StatusActive, false},
		{StatusActive, StatusCompleted, false},
		{StatusActive, StatusFailed, false},
		{StatusActive, StatusPending, false},
		{StatusFailed, StatusPending, false},

		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusCompleted, StatusPending, true},
		{StatusCompleted, StatusActive, true},
		{StatusCompleted, StatusFailed, true},
		{StatusFailed, StatusActive, true},
		{StatusFailed, StatusCompleted, true},
		{StatusPending, StatusPending, true},
		{Status("bogus"), StatusActive, true},
		{StatusActive, Status("bogus"), true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if !StatusCompleted.IsTerminal() {
		t.Error("completed should be terminal")
	}
	for _, s := range []Status{StatusPending, StatusActive, StatusFailed} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument()
	if doc.Config.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", doc.Config.MaxRetries, DefaultMaxRetries)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("new document failed validation: %v", err)
	}
	for s, n := range doc.Counts() {
		if n != 0 {
			t.Errorf("new document %s count = %d, want 0", s, n)
		}
	}
}

func TestDocumentFind(t *testing.T) {
	doc := NewDocument()
	doc.Queue.Pending = append(doc.Queue.Pending, NewItem("SPEC-001", "a.spec.json", "t1", 1, testNow))
	active := NewItem("SPEC-002", "b.spec.json", "t2", 2, testNow)
	active.Status = StatusActive
	doc.Queue.Active = append(doc.Queue.Active, active)

	it, st, ok := doc.Find("SPEC-002")
	if !ok || st != StatusActive {
		t.Fatalf("Find(SPEC-002) = %v, %v, %v", it, st, ok)
	}
	if it.FilePath != "b.spec.json" {
		t.Errorf("FilePath = %q, want %q", it.FilePath, "b.spec.json")
	}

	if _, _, ok := doc.Find("SPEC-404"); ok {
		t.Error("Find(SPEC-404) should not find anything")
	}
}

func TestItemLastActivity(t *testing.T) {
	queued := testNow
	started := testNow.Add(10 * time.Minute)
	attempted := testNow.Add(25 * time.Minute)

	it := Item{QueuedAt: queued}
	if got := it.LastActivity(); !got.Equal(queued) {
		t.Errorf("LastActivity = %v, want queuedAt %v", got, queued)
	}

	it.StartedAt = &started
	if got := it.LastActivity(); !got.Equal(started) {
		t.Errorf("LastActivity = %v, want startedAt %v", got, started)
	}

	it.LastAttempt = &attempted
	if got := it.LastActivity(); !got.Equal(attempted) {
		t.Errorf("LastActivity = %v, want lastAttempt %v", got, attempted)
	}
}

func TestItemHasSpecFailure(t *testing.T) {
	it := Item{}
	if it.HasSpecFailure() {
		t.Error("no errors should mean no spec failure")
	}
	it.Errors = []ItemError{{Type: ErrorTypeInfra, Message: "runner lost"}}
	if it.HasSpecFailure() {
		t.Error("infra-only errors should not count as spec failure")
	}
	it.Errors = append(it.Errors, ItemError{Type: ErrorTypeSpec, Message: "assertion failed"})
	if !it.HasSpecFailure() {
		t.Error("spec error should count as spec failure")
	}
}

func TestDocumentValidate(t *testing.T) {
	t.Run("duplicate spec across queues", func(t *testing.T) {
		doc := NewDocument()
		doc.Queue.Pending = append(doc.Queue.Pending, NewItem("SPEC-001", "a.spec.json", "", 1, testNow))
		dup := NewItem("SPEC-001", "a.spec.json", "", 1, testNow)
		dup.Status = StatusActive
		doc.Queue.Active = append(doc.Queue.Active, dup)
		doc.RebuildLocks()

		err := doc.Validate()
		if err == nil || !strings.Contains(err.Error(), "SPEC-001") {
			t.Errorf("Validate() = %v, want duplicate error naming SPEC-001", err)
		}
	})

	t.Run("status mismatched with queue", func(t *testing.T) {
		doc := NewDocument()
		it := NewItem("SPEC-001", "a.spec.json", "", 1, testNow)
		it.Status = StatusActive
		doc.Queue.Pending = append(doc.Queue.Pending, it)

		if err := doc.Validate(); err == nil {
			t.Error("Validate() should reject status/queue mismatch")
		}
	})

	t.Run("stale lock entry", func(t *testing.T) {
		doc := NewDocument()
		doc.ActiveFiles = []string{"ghost.spec.json"}

		if err := doc.Validate(); err == nil {
			t.Error("Validate() should reject lock entry without active item")
		}
	})

	t.Run("missing lock entry", func(t *testing.T) {
		doc := NewDocument()
		it := NewItem("SPEC-001", "a.spec.json", "", 1, testNow)
		it.Status = StatusActive
		doc.Queue.Active = append(doc.Queue.Active, it)

		if err := doc.Validate(); err == nil {
			t.Error("Validate() should reject active item without lock entries")
		}
	})

	t.Run("consistent document passes", func(t *testing.T) {
		doc := NewDocument()
		it := NewItem("SPEC-001", "a.spec.json", "", 1, testNow)
		it.Status = StatusActive
		doc.Queue.Active = append(doc.Queue.Active, it)
		doc.RebuildLocks()

		if err := doc.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})
}

func TestRebuildLocks(t *testing.T) {
	doc := NewDocument()
	for i := 0; i < 2; i++ {
		it := NewItem(fmt.Sprintf("SPEC-%03d", i), fmt.Sprintf("f%d.spec.json", i), "", i, testNow)
		it.Status = StatusActive
		doc.Queue.Active = append(doc.Queue.Active, it)
	}
	doc.ActiveFiles = []string{"stale.spec.json"}
	doc.ActiveSpecs = []string{"SPEC-STALE"}

	doc.RebuildLocks()

	if err := doc.Validate(); err != nil {
		t.Errorf("Validate() after RebuildLocks = %v", err)
	}
	if len(doc.ActiveFiles) != 2 || len(doc.ActiveSpecs) != 2 {
		t.Errorf("lock sets = %v / %v, want 2 entries each", doc.ActiveFiles, doc.ActiveSpecs)
	}
}

func TestTrimCompleted(t *testing.T) {
	doc := NewDocument()
	for i := 0; i < maxCompletedHistory+25; i++ {
		done := testNow.Add(time.Duration(i) * time.Minute)
		it := NewItem(fmt.Sprintf("SPEC-%03d", i), fmt.Sprintf("f%d.spec.json", i), "", 1, testNow)
		it.Status = StatusCompleted
		it.CompletedAt = &done
		doc.Queue.Completed = append(doc.Queue.Completed, it)
	}

	doc.trimCompleted()

	if len(doc.Queue.Completed) != maxCompletedHistory {
		t.Fatalf("completed length = %d, want %d", len(doc.Queue.Completed), maxCompletedHistory)
	}
	// The oldest 25 should be gone; the survivor floor is SPEC-025.
	if got := doc.Queue.Completed[0].SpecID; got != "SPEC-025" {
		t.Errorf("oldest survivor = %s, want SPEC-025", got)
	}
	if got := doc.Queue.Completed[len(doc.Queue.Completed)-1].SpecID; got != "SPEC-124" {
		t.Errorf("newest survivor = %s, want SPEC-124", got)
	}
}
