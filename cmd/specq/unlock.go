package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/ui"
)

type unlockResult struct {
	FilePath    string `json:"filePath,omitempty"`
	SpecID      string `json:"specId,omitempty"`
	ActiveFiles int    `json:"activeFiles"`
	ActiveSpecs int    `json:"activeSpecs"`
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release a file or spec lock",
	Long: `Removes lock-set entries without touching queue membership. Unlocking
something not held exits 1. Queue transitions release their own locks;
this command is for cleaning up after a killed pipeline run.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		file, _ := cmd.Flags().GetString("file")
		specID, _ := cmd.Flags().GetString("spec-id")
		if file == "" && specID == "" {
			fatal(errors.New("one of --file or --spec-id is required"))
		}

		updater, err := openUpdater()
		if err != nil {
			fatal(err)
		}
		doc, err := updater.Read(ctx)
		if err != nil {
			fatal(err)
		}

		if !holdsLock(doc, file, specID) {
			nothingToDo("already unlocked")
		}

		result, err := updater.Update(ctx, queue.RemoveLocks(file, specID))
		if err != nil {
			fatal(err)
		}
		ui.Successf("Unlocked")
		outputJSON(unlockResult{
			FilePath:    file,
			SpecID:      specID,
			ActiveFiles: len(result.ActiveFiles),
			ActiveSpecs: len(result.ActiveSpecs),
		})
	},
}

// holdsLock reports whether any lock-set entry would be removed.
func holdsLock(doc *queue.Document, file, specID string) bool {
	if file != "" && containsString(doc.ActiveFiles, file) {
		return true
	}
	if specID != "" {
		if containsString(doc.ActiveSpecs, specID) {
			return true
		}
		if it, st, ok := doc.Find(specID); ok && st == queue.StatusActive {
			return containsString(doc.ActiveFiles, it.FilePath)
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func init() {
	unlockCmd.Flags().String("file", "", "File path whose lock to release")
	unlockCmd.Flags().String("spec-id", "", "Spec whose locks to release")
	rootCmd.AddCommand(unlockCmd)
}
