package specs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSpecNotFound reports that a spec id is absent from the file it was
// expected in.
var ErrSpecNotFound = errors.New("spec not found in file")

// StripMarker clears one spec's fixme flag in place. The file is decoded
// generically so fields the pipeline does not know about survive the
// rewrite, and numbers keep their original text. Stripping an already
// clear spec is a no-op that leaves the file untouched. Writes go through
// a temp file and rename.
func StripMarker(path, specID string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse spec file %s: %w", path, err)
	}

	entries, ok := doc["x-specs"].([]interface{})
	if !ok {
		return fmt.Errorf("%w: %s has no x-specs array", ErrSpecNotFound, path)
	}

	found := false
	changed := false
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if entry["id"] != specID {
			continue
		}
		found = true
		if fixme, _ := entry["fixme"].(bool); fixme {
			entry["fixme"] = false
			changed = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s in %s", ErrSpecNotFound, specID, path)
	}
	if !changed {
		return nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode spec file: %w", err)
	}
	out = append(out, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".spec-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace spec file: %w", err)
	}
	return nil
}
