package main

import (
	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/ui"
)

type updateActivePRResult struct {
	SpecID   string `json:"specId"`
	PRNumber int    `json:"prNumber"`
	PRURL    string `json:"prUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Attached bool   `json:"attached"`
}

var updateActivePRCmd = &cobra.Command{
	Use:   "update-active-pr",
	Short: "Attach pull request details to an active spec",
	Long: `Best-effort annotation: records the PR opened for an active spec so
the sync pass can follow it. A spec that is no longer active is logged
and ignored, not an error; the PR may have merged in the meantime.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		specID, _ := cmd.Flags().GetString("spec-id")
		prNumber, _ := cmd.Flags().GetInt("pr-number")
		prURL, _ := cmd.Flags().GetString("pr-url")
		branch, _ := cmd.Flags().GetString("branch")

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		pr := queue.PRInfo{Number: prNumber, URL: prURL, Branch: branch}
		result, err := updater.Update(ctx, queue.UpdateActivePR(specID, pr))
		if err != nil {
			fatal(err)
		}

		out := updateActivePRResult{SpecID: specID, PRNumber: prNumber, PRURL: prURL, Branch: branch}
		if it, st, ok := result.Find(specID); ok && st == queue.StatusActive && it.PRNumber != nil && *it.PRNumber == prNumber {
			out.Attached = true
			ui.Successf("Attached PR #%d to %s", prNumber, specID)
		} else {
			ui.Warnf("%s is not active, PR #%d not attached", specID, prNumber)
		}
		outputJSON(out)
	},
}

func init() {
	updateActivePRCmd.Flags().String("spec-id", "", "Active spec to annotate")
	updateActivePRCmd.Flags().Int("pr-number", 0, "Pull request number")
	updateActivePRCmd.Flags().String("pr-url", "", "Pull request URL")
	updateActivePRCmd.Flags().String("branch", "", "Head branch of the pull request")
	_ = updateActivePRCmd.MarkFlagRequired("spec-id")
	_ = updateActivePRCmd.MarkFlagRequired("pr-number")
	rootCmd.AddCommand(updateActivePRCmd)
}
