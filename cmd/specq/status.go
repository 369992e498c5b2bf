package main

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/policy"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/store"
	"github.com/specq/specq/internal/timeparsing"
	"github.com/specq/specq/internal/ui"
)

const watchDebounce = 500 * time.Millisecond

type itemStatus struct {
	SpecID         string                 `json:"specId"`
	Status         queue.Status           `json:"status"`
	Priority       int                    `json:"priority"`
	Attempts       int                    `json:"attempts"`
	PRNumber       *int                   `json:"prNumber,omitempty"`
	RequiresAction bool                   `json:"requiresAction,omitempty"`
	FailureReason  string                 `json:"failureReason,omitempty"`
	Cooldown       *policy.CooldownStatus `json:"cooldown,omitempty"`
}

type statusPayload struct {
	Counts      map[queue.Status]int `json:"counts"`
	Items       []itemStatus         `json:"items"`
	ActiveFiles []string             `json:"activeFiles"`
	ActiveSpecs []string             `json:"activeSpecs"`
	Metrics     queue.Metrics        `json:"metrics"`
	MaxRetries  int                  `json:"maxRetries"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts, locks, metrics, and per-item cooldowns",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		watch, _ := cmd.Flags().GetBool("watch")

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		if watch {
			mode, err := settings.StoreMode()
			if err != nil {
				fatal(err)
			}
			lm, ok := mode.(store.LocalMode)
			if !ok {
				fatal(errors.New("--watch requires local state; the remote document has no file to watch"))
			}
			watchStatus(ctx, updater, lm.Path)
			return
		}

		payload, err := readStatus(ctx, updater)
		if err != nil {
			fatal(err)
		}
		renderStatus(payload)
		outputJSON(payload)
	},
}

// readStatus snapshots the document into the status payload.
func readStatus(ctx context.Context, updater *store.Updater) (statusPayload, error) {
	doc, err := updater.Read(ctx)
	if err != nil {
		return statusPayload{}, err
	}

	now := time.Now().UTC()
	cooldowns := settings.Cooldowns()

	p := statusPayload{
		Counts:      doc.Counts(),
		ActiveFiles: doc.ActiveFiles,
		ActiveSpecs: doc.ActiveSpecs,
		Metrics:     doc.Metrics,
		MaxRetries:  doc.Config.MaxRetries,
		LastUpdated: doc.LastUpdated,
	}
	if settings.MaxRetries > 0 {
		p.MaxRetries = settings.MaxRetries
	}

	for i := range doc.Queue.Active {
		it := &doc.Queue.Active[i]
		p.Items = append(p.Items, itemStatus{
			SpecID:   it.SpecID,
			Status:   it.Status,
			Priority: it.Priority,
			Attempts: it.Attempts,
			PRNumber: it.PRNumber,
		})
	}
	for i := range doc.Queue.Pending {
		it := &doc.Queue.Pending[i]
		s := itemStatus{
			SpecID:   it.SpecID,
			Status:   it.Status,
			Priority: it.Priority,
			Attempts: it.Attempts,
		}
		if cd := cooldowns.Check(it, now); cd.InCooldown {
			s.Cooldown = &cd
		}
		p.Items = append(p.Items, s)
	}
	for i := range doc.Queue.Failed {
		it := &doc.Queue.Failed[i]
		p.Items = append(p.Items, itemStatus{
			SpecID:         it.SpecID,
			Status:         it.Status,
			Priority:       it.Priority,
			Attempts:       it.Attempts,
			RequiresAction: it.RequiresAction,
			FailureReason:  it.FailureReason,
		})
	}
	return p, nil
}

// renderStatus writes the human view to stderr.
func renderStatus(p statusPayload) {
	ui.Infof("Queue: %d pending, %d active, %d completed, %d failed",
		p.Counts[queue.StatusPending], p.Counts[queue.StatusActive],
		p.Counts[queue.StatusCompleted], p.Counts[queue.StatusFailed])
	for _, it := range p.Items {
		switch {
		case it.Status == queue.StatusActive && it.PRNumber != nil:
			ui.Infof("  %s %s (PR #%d)", it.Status, it.SpecID, *it.PRNumber)
		case it.Cooldown != nil:
			ui.Infof("  %s %s cooling down, %s left", it.Status, it.SpecID,
				timeparsing.FormatRemaining(time.Duration(it.Cooldown.RemainingMinutes)*time.Minute))
		case it.RequiresAction:
			ui.Warnf("  %s %s needs action: %s", it.Status, it.SpecID, it.FailureReason)
		default:
			ui.Infof("  %s %s (attempts %d)", it.Status, it.SpecID, it.Attempts)
		}
	}
	ui.Infof("Locks: %d files, %d specs", len(p.ActiveFiles), len(p.ActiveSpecs))
	ui.Infof("Processed %d, manual interventions %d, saved $%.2f",
		p.Metrics.TotalProcessed, p.Metrics.ManualInterventionCount, p.Metrics.CostSavingsFromSkips)
}

// watchStatus re-renders on state-file changes until interrupted, then
// prints the last snapshot as the stdout envelope.
func watchStatus(ctx context.Context, updater *store.Updater, statePath string) {
	dir := filepath.Dir(statePath)
	base := filepath.Base(statePath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: the store replaces the file by
	// rename, which drops a watch on the file itself.
	if err := watcher.Add(dir); err != nil {
		fatal(err)
	}

	payload, err := readStatus(ctx, updater)
	if err != nil {
		fatal(err)
	}
	renderStatus(payload)
	ui.Infof("Watching %s... (Ctrl+C to exit)", statePath)

	refresh := make(chan struct{}, 1)
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			outputJSON(payload)
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				outputJSON(payload)
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					select {
					case refresh <- struct{}{}:
					default:
					}
				})
			}
		case <-refresh:
			p, err := readStatus(ctx, updater)
			if err != nil {
				ui.Warnf("failed to refresh: %v", err)
				continue
			}
			payload = p
			renderStatus(payload)
		case werr, ok := <-watcher.Errors:
			if !ok {
				outputJSON(payload)
				return
			}
			ui.Warnf("watcher error: %v", werr)
		}
	}
}

func init() {
	statusCmd.Flags().Bool("watch", false, "Re-render on state-file changes (local mode only)")
	rootCmd.AddCommand(statusCmd)
}
