package github

import (
	"testing"
)

// TestParseLabelName verifies scoped label parsing with both separators.
func TestParseLabelName(t *testing.T) {
	tests := []struct {
		label      string
		wantPrefix string
		wantValue  string
	}{
		{"tdd:active", "tdd", "active"},
		{"tdd/active", "tdd", "active"},
		{"tdd:manual", "tdd", "manual"},
		{"plain-label", "", "plain-label"},
		{"a:b:c", "a", "b:c"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			prefix, value := ParseLabelName(tt.label)
			if prefix != tt.wantPrefix || value != tt.wantValue {
				t.Errorf("ParseLabelName(%q) = (%q, %q), want (%q, %q)",
					tt.label, prefix, value, tt.wantPrefix, tt.wantValue)
			}
		})
	}
}

// TestLabelNames verifies name extraction.
func TestLabelNames(t *testing.T) {
	labels := []Label{{Name: "tdd:active"}, {Name: "bug"}}
	names := LabelNames(labels)
	if len(names) != 2 || names[0] != "tdd:active" || names[1] != "bug" {
		t.Errorf("LabelNames() = %v", names)
	}
}

// TestIsValidState verifies GitHub state validation.
func TestIsValidState(t *testing.T) {
	for _, valid := range []string{"open", "closed"} {
		if !IsValidState(valid) {
			t.Errorf("IsValidState(%q) = false, want true", valid)
		}
	}
	for _, invalid := range []string{"merged", "all", ""} {
		if IsValidState(invalid) {
			t.Errorf("IsValidState(%q) = true, want false", invalid)
		}
	}
}

// TestPullRequestHasLabel verifies label membership checks.
func TestPullRequestHasLabel(t *testing.T) {
	pr := PullRequest{Labels: []Label{{Name: "tdd-automation"}}}
	if !pr.HasLabel("tdd-automation") {
		t.Error("HasLabel(tdd-automation) = false")
	}
	if pr.HasLabel("bug") {
		t.Error("HasLabel(bug) = true")
	}
}
