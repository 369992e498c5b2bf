package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Activate a pending spec and take its file and spec locks",
	Long: `Moves a pending spec to active and inserts its file and spec locks in
one atomic update. A spec not queued yet is enqueued first from the
scanner's metadata. Exits 1 when the spec or its file is already busy.`,
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

		now := time.Now().UTC()

		// Scanner I/O stays outside the transform; the enqueue decision is
		// re-checked inside it because a conflict re-reads the document.
		var enqueue queue.Transform
		if _, _, ok := doc.Find(specID); !ok {
			item, err := itemFromScan(ctx, specID, now)
			if err != nil {
				fatal(err)
			}
			enqueue = queue.Enqueue(item)
			ui.Verbosef("%s not queued yet, enqueueing from scan", specID)
		}

		transform := func(d *queue.Document) error {
			if enqueue != nil {
				if _, _, ok := d.Find(specID); !ok {
					if err := enqueue(d); err != nil {
						return err
					}
				}
			}
			return queue.LockAndActivateSpecs([]string{specID}, now)(d)
		}

		result, err := updater.Update(ctx, transform)
		if err != nil {
			if errors.Is(err, queue.ErrAlreadyActive) || errors.Is(err, queue.ErrFileLocked) {
				ui.Infof("Busy: %v", err)
				outputJSONError(err, exitNothingToDo)
			}
			fatal(err)
		}

		it, _, ok := result.Find(specID)
		if !ok {
			fatal(fmt.Errorf("spec %s vanished after activation", specID))
		}
		ui.Successf("Locked %s (%s)", specID, it.FilePath)
		outputJSON(it)
	},
}

// itemFromScan builds a pending item for a spec the scanner can locate.
func itemFromScan(ctx context.Context, specID string, now time.Time) (queue.Item, error) {
	found, warnings, err := specScanner().FindFixme(ctx)
	if err != nil {
		return queue.Item{}, err
	}
	for _, w := range warnings {
		ui.Warnf("%s", w)
	}
	for i := range found {
		if found[i].ID == specID {
			sp := &found[i]
			return queue.NewItem(specID, sp.FilePath, sp.DisplayName(), sp.EffectivePriority(), now), nil
		}
	}
	return queue.Item{}, fmt.Errorf("spec %s not found in any spec file under %s", specID, settings.SpecRoot)
}

func init() {
	lockCmd.Flags().String("spec-id", "", "Spec to activate")
	_ = lockCmd.MarkFlagRequired("spec-id")
	rootCmd.AddCommand(lockCmd)
}
