package main

import (
	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/ui"
)

var findReadySpecCmd = &cobra.Command{
	Use:   "find-ready-spec",
	Short: "Select the next spec eligible for a pipeline run",
	Long: `Scans for fixme-marked specs and picks the highest-priority one that
is not active, locked, cooling down, or covered by an open automation PR.
Exits 1 when serial processing is in progress or nothing is eligible.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		// The serial-processing guard fails closed: no tracker, no pick.
		client, err := githubClient()
		if err != nil {
			fatal(err)
		}
		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}
		doc, err := updater.Read(ctx)
		if err != nil {
			fatal(err)
		}

		res, err := newPicker(doc, client).Pick(ctx)
		if err != nil {
			fatal(err)
		}
		for _, w := range res.Warnings {
			ui.Warnf("%s", w)
		}
		if res.Candidate == nil {
			nothingToDo(res.Reason)
		}
		ui.Successf("Ready: %s (%s)", res.Candidate.SpecID, res.Candidate.FilePath)
		outputJSON(res.Candidate)
	},
}

func init() {
	rootCmd.AddCommand(findReadySpecCmd)
}
