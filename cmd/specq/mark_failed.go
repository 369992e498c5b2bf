package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/policy"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/ui"
)

type markFailedResult struct {
	SpecID   string               `json:"specId"`
	Status   queue.Status         `json:"status"`
	Attempts int                  `json:"attempts"`
	Decision policy.RetryDecision `json:"decision"`
}

var markFailedCmd = &cobra.Command{
	Use:   "mark-failed",
	Short: "Record a failed run and route the spec by retry policy",
	Long: `Records a failure against an active spec. Infrastructure failures
requeue without penalty; spec failures consume the retry budget and,
once it is spent, move the item to manual intervention. The failure
type is classified from the message unless --failure-type overrides.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		specID, _ := cmd.Flags().GetString("spec-id")
		message, _ := cmd.Flags().GetString("message")
		failureType, _ := cmd.Flags().GetString("failure-type")

		category := policy.Classify(message)
		switch failureType {
		case "":
			ui.Verbosef("classified failure as %s", category)
		case "spec":
			category = policy.CategorySpec
		case "infra":
			category = policy.CategoryInfra
		default:
			fatal(fmt.Errorf("invalid --failure-type %q (want spec or infra)", failureType))
		}

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}

		now := time.Now().UTC()
		e := queue.ItemError{Type: string(category), Message: message, Timestamp: now}

		// The decision is made inside the transform: a conflicting writer
		// may change Attempts between read and write, and the routing must
		// follow the document that actually persists.
		var decision policy.RetryDecision
		transform := func(d *queue.Document) error {
			it, st, ok := d.Find(specID)
			if !ok || st != queue.StatusActive {
				return fmt.Errorf("%w: %s not active", queue.ErrNotFound, specID)
			}
			maxR := d.Config.MaxRetries
			if settings.MaxRetries > 0 {
				maxR = settings.MaxRetries
			}
			decision = policy.Decide(category, it.Attempts, maxR, policy.DefaultBackoff())
			switch {
			case decision.MaxRetriesReached:
				return queue.MoveToManualIntervention(specID, message, now)(d)
			case decision.Category == policy.CategoryInfra:
				return queue.RequeueWithoutPenalty(specID, e, now)(d)
			default:
				return queue.RecordFailureAndRequeue(specID, e, now)(d)
			}
		}

		result, err := updater.Update(ctx, transform)
		if err != nil {
			fatal(err)
		}

		it, st, ok := result.Find(specID)
		if !ok {
			fatal(fmt.Errorf("spec %s missing after failure routing", specID))
		}
		out := markFailedResult{SpecID: specID, Status: st, Attempts: it.Attempts, Decision: decision}
		if decision.MaxRetriesReached {
			ui.Warnf("%s moved to manual intervention: %s", specID, decision.Reason)
		} else {
			ui.Infof("%s requeued: %s", specID, decision.Reason)
		}
		outputJSON(out)
	},
}

func init() {
	markFailedCmd.Flags().String("spec-id", "", "Spec that failed")
	markFailedCmd.Flags().String("message", "", "Failure message from the run")
	markFailedCmd.Flags().String("failure-type", "", "Override classification: spec or infra")
	_ = markFailedCmd.MarkFlagRequired("spec-id")
	_ = markFailedCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(markFailedCmd)
}
