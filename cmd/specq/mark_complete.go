package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/specs"
	"github.com/specq/specq/internal/ui"
)

type markCompleteResult struct {
	SpecID         string `json:"specId"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	Reason         string `json:"reason,omitempty"`
	MarkerFile     string `json:"markerFile,omitempty"`
	MarkerStripped bool   `json:"markerStripped,omitempty"`
}

var markCompleteCmd = &cobra.Command{
	Use:   "mark-complete",
	Short: "Move an active spec to completed and release its locks",
	Long: `Completes an active spec. The fixme marker in the spec file is
reported but left alone unless --strip-marker is given; the pipeline
run that implemented the test normally clears it.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		specID, _ := cmd.Flags().GetString("spec-id")
		reason, _ := cmd.Flags().GetString("reason")
		strip, _ := cmd.Flags().GetBool("strip-marker")

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		result, err := updater.Update(ctx, queue.MarkCompleted(specID, time.Now().UTC()))
		if err != nil {
			fatal(err)
		}

		it, _, ok := result.Find(specID)
		if !ok {
			fatal(fmt.Errorf("spec %s missing after completion", specID))
		}

		out := markCompleteResult{
			SpecID:     specID,
			Status:     string(it.Status),
			Attempts:   it.Attempts,
			Reason:     reason,
			MarkerFile: it.FilePath,
		}
		if strip {
			path := filepath.Join(settings.SpecRoot, filepath.FromSlash(it.FilePath))
			switch err := specs.StripMarker(path, specID); {
			case err == nil:
				out.MarkerStripped = true
			case errors.Is(err, specs.ErrSpecNotFound):
				ui.Warnf("spec missing from its file, nothing to strip: %v", err)
			default:
				// The state change is already persisted; a failed strip is
				// reported, not fatal, so the scheduler does not re-complete.
				ui.Warnf("failed to strip marker: %v", err)
			}
		}

		ui.Successf("Completed %s", specID)
		outputJSON(out)
	},
}

func init() {
	markCompleteCmd.Flags().String("spec-id", "", "Spec to complete")
	markCompleteCmd.Flags().String("reason", "", "Completion note for the report")
	markCompleteCmd.Flags().Bool("strip-marker", false, "Also clear the spec's fixme flag in its file")
	_ = markCompleteCmd.MarkFlagRequired("spec-id")
	rootCmd.AddCommand(markCompleteCmd)
}
