package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/ui"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Return a failed spec to the pending queue",
	Long: `Operator action: moves a failed spec back to pending and clears its
manual-intervention flag. History is kept unless --reset-retries or
--clear-errors is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		specID, _ := cmd.Flags().GetString("spec-id")
		resetRetries, _ := cmd.Flags().GetBool("reset-retries")
		clearErrors, _ := cmd.Flags().GetBool("clear-errors")

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		opts := queue.RequeueOptions{ResetRetries: resetRetries, ClearErrors: clearErrors}
		result, err := updater.Update(ctx, queue.RequeueFromFailed(specID, opts, time.Now().UTC()))
		if err != nil {
			fatal(err)
		}

		it, _, ok := result.Find(specID)
		if !ok {
			fatal(fmt.Errorf("spec %s missing after requeue", specID))
		}
		ui.Successf("Requeued %s", specID)
		outputJSON(it)
	},
}

func init() {
	requeueCmd.Flags().String("spec-id", "", "Failed spec to requeue")
	requeueCmd.Flags().Bool("reset-retries", false, "Zero the attempt counter")
	requeueCmd.Flags().Bool("clear-errors", false, "Drop the recorded failure history")
	_ = requeueCmd.MarkFlagRequired("spec-id")
	rootCmd.AddCommand(requeueCmd)
}
