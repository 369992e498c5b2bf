// Package config resolves process settings once at startup. Precedence is
// flags over environment over .specq/config.yaml over defaults; flag
// overrides are applied by the CLI after Load. Nothing downstream reads
// the environment ad hoc; business logic sees plain Settings data.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/specq/specq/internal/labelstate"
	"github.com/specq/specq/internal/picker"
	"github.com/specq/specq/internal/policy"
	"github.com/specq/specq/internal/specs"
	"github.com/specq/specq/internal/store"
	"github.com/specq/specq/internal/timeparsing"
)

// Defaults for the state document location and spec discovery.
const (
	// ConfigDir holds project-local configuration and the local-mode state.
	ConfigDir = ".specq"

	// ConfigFileName inside ConfigDir.
	ConfigFileName = "config.yaml"

	// DefaultStateBranch is the dedicated branch the remote document lives on.
	DefaultStateBranch = "tdd-state"

	// DefaultStatePath is the document path within the repository.
	DefaultStatePath = ".tdd/queue.json"

	// DefaultLocalStatePath is the local-mode state file.
	DefaultLocalStatePath = ".specq/queue.json"
)

// Settings is the resolved configuration. Zero values mean "use the
// built-in default" for durations and retry counts.
type Settings struct {
	// Repository identity and credentials, from GITHUB_REPOSITORY and
	// GH_TOKEN/GITHUB_TOKEN. Empty in purely local runs.
	Owner string
	Repo  string
	Token string

	// State document location.
	StateBranch    string
	StatePath      string
	LocalStatePath string

	// RemoteState selects the GitHub-backed store. Set when CI or
	// GITHUB_ACTIONS is truthy.
	RemoteState bool

	// Spec discovery.
	SpecRoot string
	SpecGlob string

	// MaxRetries overrides the per-document retry budget when positive.
	MaxRetries int

	// Cooldown overrides. Zero keeps the policy defaults.
	CooldownStandard time.Duration
	CooldownFailedPR time.Duration

	// Label front-end naming.
	LabelPrefix     string
	AutomationLabel string

	// ConfigFile is the config file actually read, "" when none was found.
	ConfigFile string

	// UnknownKeys lists config file keys nothing consumes, in dotted form
	// ("cooldown.weird"). Typos land here instead of being silently
	// ignored; the CLI reports them as warnings.
	UnknownKeys []string
}

// Defaults returns settings with every built-in default filled in.
func Defaults() *Settings {
	return &Settings{
		StateBranch:     DefaultStateBranch,
		StatePath:       DefaultStatePath,
		LocalStatePath:  DefaultLocalStatePath,
		SpecRoot:        ".",
		SpecGlob:        specs.DefaultGlob,
		LabelPrefix:     labelstate.DefaultPrefix,
		AutomationLabel: picker.DefaultAutomationLabel,
	}
}

// Options controls Load. Getenv is injectable for tests.
type Options struct {
	// ConfigPath points at an explicit config file. Empty means search
	// upward from the working directory for .specq/config.yaml.
	ConfigPath string

	Getenv func(string) string
}

// Load resolves settings from the config file and the environment.
func Load(opts Options) (*Settings, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	s := Defaults()

	path := opts.ConfigPath
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		if err := s.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := s.applyEnv(getenv); err != nil {
		return nil, err
	}
	return s, nil
}

// FindConfigFile walks up from the working directory looking for
// .specq/config.yaml. Returns "" when there is none.
func FindConfigFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, ConfigDir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// applyFile overlays values from a yaml config file. A missing file is
// not an error; a malformed one is.
func (s *Settings) applyFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	s.ConfigFile = path
	s.UnknownKeys = unknownKeys(path)

	setString := func(key string, dst *string) {
		if x := v.GetString(key); x != "" {
			*dst = x
		}
	}
	setString("state-branch", &s.StateBranch)
	setString("state-path", &s.StatePath)
	setString("local-state", &s.LocalStatePath)
	setString("spec-root", &s.SpecRoot)
	setString("spec-glob", &s.SpecGlob)
	setString("label-prefix", &s.LabelPrefix)
	setString("automation-label", &s.AutomationLabel)

	if v.IsSet("max-retries") {
		n := v.GetInt("max-retries")
		if n < 1 {
			return fmt.Errorf("%s: max-retries must be at least 1, got %d", path, n)
		}
		s.MaxRetries = n
	}

	if err := setSpan(v, path, "cooldown.standard", &s.CooldownStandard); err != nil {
		return err
	}
	return setSpan(v, path, "cooldown.failed-pr", &s.CooldownFailedPR)
}

// knownConfigKeys are the file keys applyFile consumes. "cooldown" is a
// mapping whose subkeys are checked separately.
var knownConfigKeys = map[string]bool{
	"state-branch":     true,
	"state-path":       true,
	"local-state":      true,
	"spec-root":        true,
	"spec-glob":        true,
	"label-prefix":     true,
	"automation-label": true,
	"max-retries":      true,
	"cooldown":         true,
}

var knownCooldownKeys = map[string]bool{
	"standard":  true,
	"failed-pr": true,
}

// unknownKeys reparses the config file strictly and reports keys outside
// the documented set. Viper drops unrecognized keys without a trace, so a
// typo like max-retrys would otherwise fall back to the default silently.
// The file already parsed under viper, so read or unmarshal failures here
// carry no new information and yield no findings.
func unknownKeys(path string) []string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil
	}

	var out []string
	for k, val := range m {
		if !knownConfigKeys[k] {
			out = append(out, k)
			continue
		}
		if k != "cooldown" {
			continue
		}
		sub, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		for sk := range sub {
			if !knownCooldownKeys[sk] {
				out = append(out, "cooldown."+sk)
			}
		}
	}
	sort.Strings(out)
	return out
}

// setSpan parses a compact span config value ("30m", "2h") into dst.
func setSpan(v *viper.Viper, path, key string, dst *time.Duration) error {
	raw := v.GetString(key)
	if raw == "" {
		return nil
	}
	d, err := timeparsing.ParseSpan(raw)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", path, key, err)
	}
	*dst = d
	return nil
}

// applyEnv overlays the environment variables the pipeline documents.
func (s *Settings) applyEnv(getenv func(string) string) error {
	if repo := getenv("GITHUB_REPOSITORY"); repo != "" {
		owner, name, err := splitRepository(repo)
		if err != nil {
			return err
		}
		s.Owner, s.Repo = owner, name
	}

	if tok := getenv("GH_TOKEN"); tok != "" {
		s.Token = tok
	} else if tok := getenv("GITHUB_TOKEN"); tok != "" {
		s.Token = tok
	}

	if raw := getenv("TDD_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid TDD_MAX_ATTEMPTS %q: want a positive integer", raw)
		}
		s.MaxRetries = n
	}

	if x := getenv("SPECQ_STATE_BRANCH"); x != "" {
		s.StateBranch = x
	}
	if x := getenv("SPECQ_STATE_PATH"); x != "" {
		s.StatePath = x
	}

	if isTruthy(getenv("CI")) || isTruthy(getenv("GITHUB_ACTIONS")) {
		s.RemoteState = true
	}
	return nil
}

// splitRepository parses GITHUB_REPOSITORY's owner/repo form.
func splitRepository(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid GITHUB_REPOSITORY %q: want owner/repo", repo)
	}
	return owner, name, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// StoreMode builds the persistence mode for these settings. Remote mode
// requires the repository identity and a token; the error says which is
// missing so CI logs are actionable.
func (s *Settings) StoreMode() (store.Mode, error) {
	if !s.RemoteState {
		return store.LocalMode{Path: s.LocalStatePath}, nil
	}
	if s.Owner == "" || s.Repo == "" {
		return nil, errors.New("remote state requires GITHUB_REPOSITORY (owner/repo)")
	}
	if s.Token == "" {
		return nil, errors.New("remote state requires GH_TOKEN or GITHUB_TOKEN")
	}
	return store.RemoteMode{
		Token:  s.Token,
		Owner:  s.Owner,
		Repo:   s.Repo,
		Branch: s.StateBranch,
		Path:   s.StatePath,
	}, nil
}

// Cooldowns returns the cooldown table with any configured overrides.
func (s *Settings) Cooldowns() policy.Cooldowns {
	c := policy.DefaultCooldowns()
	if s.CooldownStandard > 0 {
		c.Standard = s.CooldownStandard
	}
	if s.CooldownFailedPR > 0 {
		c.FailedPR = s.CooldownFailedPR
	}
	return c
}
