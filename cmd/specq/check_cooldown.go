package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/timeparsing"
	"github.com/specq/specq/internal/ui"
)

var checkCooldownCmd = &cobra.Command{
	Use:   "check-cooldown",
	Short: "Report whether a spec is inside its retry cooldown",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		specID, _ := cmd.Flags().GetString("spec-id")

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}
		doc, err := updater.Read(ctx)
		if err != nil {
			fatal(err)
		}

		it, _, ok := doc.Find(specID)
		if !ok {
			fatal(fmt.Errorf("%w: %s", queue.ErrNotFound, specID))
		}

		status := settings.Cooldowns().Check(it, time.Now().UTC())
		if status.InCooldown {
			ui.Infof("%s cooling down, %s left", specID,
				timeparsing.FormatRemaining(time.Duration(status.RemainingMinutes)*time.Minute))
		} else {
			ui.Infof("%s is not in cooldown", specID)
		}
		outputJSON(status)
	},
}

func init() {
	checkCooldownCmd.Flags().String("spec-id", "", "Spec to check")
	_ = checkCooldownCmd.MarkFlagRequired("spec-id")
	rootCmd.AddCommand(checkCooldownCmd)
}
