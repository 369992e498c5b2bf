package main

import (
	"fmt"

	"github.com/specq/specq/internal/costs"
	"github.com/specq/specq/internal/github"
	"github.com/specq/specq/internal/labelstate"
	"github.com/specq/specq/internal/picker"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/specs"
	"github.com/specq/specq/internal/store"
	"github.com/specq/specq/internal/telemetry"
	"github.com/specq/specq/internal/ui"
)

// openStore builds the document store for the configured mode, wrapped
// with telemetry when enabled.
func openStore() (store.DocumentStore, error) {
	mode, err := settings.StoreMode()
	if err != nil {
		return nil, err
	}
	ui.Verbosef("state store: %s", mode)
	s, err := store.Open(mode)
	if err != nil {
		return nil, err
	}
	return telemetry.WrapStore(s), nil
}

// openUpdater wires the atomic updater over the configured store.
func openUpdater() (*store.Updater, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	return store.NewUpdater(s), nil
}

// githubClient builds the API client. Commands that consult PRs or issue
// labels need it even in local-state mode.
func githubClient() (*github.Client, error) {
	if settings.Owner == "" || settings.Repo == "" {
		return nil, fmt.Errorf("GITHUB_REPOSITORY (owner/repo) is required to reach the PR tracker")
	}
	if settings.Token == "" {
		return nil, fmt.Errorf("GH_TOKEN or GITHUB_TOKEN is required to reach the PR tracker")
	}
	return github.NewClient(settings.Token, settings.Owner, settings.Repo), nil
}

// labelMachine wires the issue-label front end.
func labelMachine() (*labelstate.Machine, error) {
	client, err := githubClient()
	if err != nil {
		return nil, err
	}
	return &labelstate.Machine{Client: client, Prefix: settings.LabelPrefix}, nil
}

// specScanner finds fixme-marked specs under the configured root.
func specScanner() *specs.Scanner {
	return &specs.Scanner{Root: settings.SpecRoot, Glob: settings.SpecGlob}
}

// newPicker assembles the selector over a document snapshot.
func newPicker(doc *queue.Document, client *github.Client) *picker.Picker {
	return &picker.Picker{
		Doc:       doc,
		Tracker:   client,
		Scanner:   specScanner(),
		Cooldowns: settings.Cooldowns(),
		Label:     settings.AutomationLabel,
	}
}

// costEstimator prices one pipeline run from recent workflow logs. A nil
// client degrades to the flat fallback estimate.
func costEstimator(client *github.Client) *costs.Estimator {
	est := &costs.Estimator{}
	if client != nil {
		est.Client = client
	}
	return est
}
