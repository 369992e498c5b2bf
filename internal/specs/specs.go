// Package specs reads the spec files the pipeline works through: JSON
// documents carrying an x-specs array whose entries stay marked fixme
// until their generated implementation passes.
package specs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultGlob matches spec files by base name.
const DefaultGlob = "*.spec.json"

// DefaultPriority is assumed for entries without an explicit priority.
// Lower numbers are picked first.
const DefaultPriority = 5

// Entry is one spec inside a file's x-specs array.
type Entry struct {
	ID       string `json:"id"`
	Given    string `json:"given,omitempty"`
	When     string `json:"when,omitempty"`
	Then     string `json:"then,omitempty"`
	TestName string `json:"testName,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Fixme    bool   `json:"fixme,omitempty"`
}

// specFile is the on-disk shape. Fields other than x-specs pass through
// untouched; only StripMarker rewrites files.
type specFile struct {
	XSpecs []Entry `json:"x-specs"`
}

// Spec is an entry located in its file.
type Spec struct {
	Entry
	FilePath string // relative to the scanner root, slash-separated
}

// EffectivePriority returns the entry's priority, or DefaultPriority when
// none was written.
func (s *Spec) EffectivePriority() int {
	if s.Priority != nil {
		return *s.Priority
	}
	return DefaultPriority
}

// DisplayName names the spec for humans: the explicit test name when set,
// otherwise the behavior clauses, otherwise the id.
func (s *Spec) DisplayName() string {
	if s.TestName != "" {
		return s.TestName
	}
	var parts []string
	if s.Given != "" {
		parts = append(parts, "given "+s.Given)
	}
	if s.When != "" {
		parts = append(parts, "when "+s.When)
	}
	if s.Then != "" {
		parts = append(parts, "then "+s.Then)
	}
	if len(parts) == 0 {
		return s.ID
	}
	return strings.Join(parts, ", ")
}

// Scanner finds fixme-marked specs under a root directory.
type Scanner struct {
	Root string
	Glob string // defaults to DefaultGlob
}

// FindFixme walks the root and returns every entry still marked fixme,
// ordered by file path then id. Files that fail to read or parse are
// skipped and reported as warnings rather than failing the scan.
func (s *Scanner) FindFixme(ctx context.Context) ([]Spec, []string, error) {
	glob := s.Glob
	if glob == "" {
		glob = DefaultGlob
	}

	var specs []Spec
	var warnings []string

	err := filepath.Walk(s.Root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // skip entries we can't read
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := info.Name()
		if info.IsDir() {
			if path != s.Root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(glob, name); !ok {
			return nil
		}

		rel, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %v", rel, readErr))
			return nil
		}
		var file specFile
		if jsonErr := json.Unmarshal(content, &file); jsonErr != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %v", rel, jsonErr))
			return nil
		}

		for _, e := range file.XSpecs {
			if e.ID == "" {
				warnings = append(warnings, fmt.Sprintf("%s: x-spec entry without id", rel))
				continue
			}
			if !e.Fixme {
				continue
			}
			specs = append(specs, Spec{Entry: e, FilePath: rel})
		}
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}

	sort.Slice(specs, func(i, j int) bool {
		if specs[i].FilePath != specs[j].FilePath {
			return specs[i].FilePath < specs[j].FilePath
		}
		return specs[i].ID < specs[j].ID
	})
	return specs, warnings, nil
}
