package specs

import (
	"fmt"
	"regexp"
	"strings"
)

// TitlePrefix marks automation pull request titles.
const TitlePrefix = "[tdd]"

// BranchPrefix namespaces automation work branches.
const BranchPrefix = "tdd/"

// InvalidTitleFormatError reports a pull request title outside the
// "[tdd] SPEC-ID: title" convention. It is an input-validation error and
// is never retried.
type InvalidTitleFormatError struct {
	Title string
}

func (e *InvalidTitleFormatError) Error() string {
	return fmt.Sprintf("pull request title %q does not match %q", e.Title, TitlePrefix+" SPEC-ID: title")
}

var titlePattern = regexp.MustCompile(`^\[tdd\]\s+([A-Za-z0-9][A-Za-z0-9._-]*):\s*(.*)$`)

// FormatPRTitle renders the automation title for a spec.
func FormatPRTitle(specID, title string) string {
	return fmt.Sprintf("%s %s: %s", TitlePrefix, specID, title)
}

// ParsePRTitle extracts the spec id and descriptive remainder from an
// automation title.
func ParsePRTitle(title string) (specID, rest string, err error) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", &InvalidTitleFormatError{Title: title}
	}
	return m[1], m[2], nil
}

// branchUnsafe matches characters that do not survive in a git ref name.
var branchUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BranchFor returns the work branch for a spec. Unsafe characters
// collapse to '-', so the mapping inverts cleanly for well-formed ids.
func BranchFor(specID string) string {
	return BranchPrefix + branchUnsafe.ReplaceAllString(specID, "-")
}

// SpecIDFromBranch inverts BranchFor. ok is false for branches outside
// the automation namespace.
func SpecIDFromBranch(branch string) (string, bool) {
	if !strings.HasPrefix(branch, BranchPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(branch, BranchPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
