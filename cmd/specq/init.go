package main

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/config"
	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/store"
	"github.com/specq/specq/internal/ui"
)

type initResult struct {
	ConfigPath    string `json:"configPath"`
	ConfigCreated bool   `json:"configCreated"`
	State         string `json:"state"`
	StateCreated  bool   `json:"stateCreated"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config skeleton and the initial state document",
	Long: `Writes a commented .specq/config.yaml and the initial empty state
document. Existing files are never overwritten; if both already exist
the command exits 1.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		result := initResult{ConfigCreated: true}
		path, err := config.WriteSkeleton(".")
		result.ConfigPath = path
		if err != nil {
			if !errors.Is(err, fs.ErrExist) {
				fatal(err)
			}
			result.ConfigCreated = false
			ui.Verbosef("config already present at %s", path)
		} else {
			ui.Successf("Wrote %s", path)
		}

		mode, err := settings.StoreMode()
		if err != nil {
			fatal(err)
		}
		result.State = mode.String()
		s, err := openStore()
		if err != nil {
			fatal(err)
		}

		switch _, err := s.Read(ctx); {
		case err == nil:
			ui.Verbosef("state document already present")
		case errors.Is(err, store.ErrNotFound):
			if _, err := s.Write(ctx, queue.NewDocument(), ""); err != nil {
				fatal(err)
			}
			result.StateCreated = true
			ui.Successf("Created state document (%s)", mode)
		default:
			fatal(err)
		}

		if !result.ConfigCreated && !result.StateCreated {
			nothingToDo("already initialized: config and state document both exist")
		}
		outputJSON(result)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
