package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// skeleton is the starter config written by specq init. Every key is
// commented out; the values shown are the defaults.
const skeleton = `# specq configuration. All keys are optional; commented values are the
# defaults.

# Remote state document location (CI runs write here).
# state-branch: tdd-state
# state-path: .tdd/queue.json

# State file for local runs.
# local-state: .specq/queue.json

# Spec discovery.
# spec-root: .
# spec-glob: "*.spec.json"

# Spec-failure retries before an item needs manual intervention.
# max-retries: 3

# Cooldown periods, in compact spans (45s, 30m, 2h).
# cooldown:
#   standard: 30m
#   failed-pr: 90m

# Issue label naming.
# label-prefix: tdd
# automation-label: tdd-automation
`

// WriteSkeleton creates .specq/config.yaml under root. The path is
// returned either way; an existing file is an error, never overwritten.
func WriteSkeleton(root string) (string, error) {
	dir := filepath.Join(root, ConfigDir)
	path := filepath.Join(dir, ConfigFileName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return path, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return path, fmt.Errorf("%s: %w", path, fs.ErrExist)
		}
		return path, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteString(skeleton); err != nil {
		f.Close()
		return path, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
