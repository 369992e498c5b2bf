package main

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of specq (overridden by ldflags at
	// build time).
	Version = "0.3.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag).
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func printVersion() {
	result := map[string]string{
		"version": Version,
		"build":   Build,
	}
	if c := resolveCommitHash(); c != "" {
		result["commit"] = c
	}
	outputJSON(result)
}

// resolveCommitHash prefers the ldflag, falling back to the revision
// stamped into the build info.
func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
