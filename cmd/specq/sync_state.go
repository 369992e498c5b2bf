package main

import (
	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/reconcile"
	"github.com/specq/specq/internal/ui"
)

var syncStateCmd = &cobra.Command{
	Use:   "sync-state-with-prs",
	Short: "Reconcile queue state with pull request reality",
	Long: `Checks every active item's PR and corrects the queue: merged PRs
complete their items, closed-unmerged PRs requeue them, and items
whose PR disappeared are requeued as orphans. Lock sets are rebuilt
when they drift. Run this before selection.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		client, err := githubClient()
		if err != nil {
			fatal(err)
		}
		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		rec := &reconcile.Reconciler{
			Updater:    updater,
			Tracker:    client,
			Estimator:  costEstimator(client),
			MaxRetries: settings.MaxRetries,
		}
		report, err := rec.Run(ctx)
		if err != nil {
			fatal(err)
		}

		for _, w := range report.Warnings {
			ui.Warnf("%s", w)
		}
		for _, stale := range report.StalePRs {
			ui.Warnf("PR #%d for %s idle for %d minutes", stale.PRNumber, stale.SpecID, stale.IdleMinutes)
		}
		ui.Successf("Synced: %d checked, %d completed, %d requeued, %d failed, %d orphaned",
			report.Checked, report.Completed, report.Requeued, report.Failed, report.Orphaned)
		outputJSON(report)
	},
}

func init() {
	rootCmd.AddCommand(syncStateCmd)
}
