package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specq/specq/internal/labelstate"
	"github.com/specq/specq/internal/ui"
)

type issueStateResult struct {
	Issue    int    `json:"issue"`
	State    string `json:"state"`
	Label    string `json:"label,omitempty"`
	Previous string `json:"previous,omitempty"`
	Cleared  bool   `json:"cleared,omitempty"`
}

type issueRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

type issueFindResult struct {
	State  string     `json:"state"`
	Issues []issueRef `json:"issues"`
}

var issueStateCmd = &cobra.Command{
	Use:   "issue-state",
	Short: "Read or move the label state of a tracking issue",
	Long: `The issue-label front end mirrors queue lifecycle states as labels
(tdd:pending through tdd:manual). Without --set this reads the state;
--set moves it through the same transition rules the queue enforces;
--clear removes all state labels from a conflicted issue; --find lists
open issues in a state.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		issue, _ := cmd.Flags().GetInt("issue")
		setState, _ := cmd.Flags().GetString("set")
		clear, _ := cmd.Flags().GetBool("clear")
		findState, _ := cmd.Flags().GetString("find")

		machine, err := labelMachine()
		if err != nil {
			fatal(err)
		}

		if findState != "" {
			if issue != 0 || setState != "" || clear {
				fatal(errors.New("--find cannot be combined with --issue, --set, or --clear"))
			}
			runIssueFind(ctx, machine, findState)
			return
		}
		if issue == 0 {
			fatal(errors.New("--issue is required"))
		}
		if setState != "" && clear {
			fatal(errors.New("--set and --clear are mutually exclusive"))
		}

		switch {
		case clear:
			if err := machine.Clear(ctx, issue); err != nil {
				fatal(err)
			}
			ui.Successf("Cleared state labels on issue #%d", issue)
			outputJSON(issueStateResult{Issue: issue, State: stateName(labelstate.StateNone), Cleared: true})

		case setState != "":
			target, err := parseState(setState)
			if err != nil {
				fatal(err)
			}
			previous, err := machine.State(ctx, issue)
			if err != nil {
				fatal(err)
			}
			if err := machine.Set(ctx, issue, target); err != nil {
				var conflict *labelstate.ConflictError
				if errors.As(err, &conflict) {
					ui.Errorf("%v; repair with --clear first", conflict)
				}
				fatal(err)
			}
			ui.Successf("Issue #%d: %s -> %s", issue, stateName(previous), target)
			outputJSON(issueStateResult{
				Issue:    issue,
				State:    string(target),
				Label:    machine.LabelFor(target),
				Previous: stateName(previous),
			})

		default:
			state, err := machine.State(ctx, issue)
			if err != nil {
				fatal(err)
			}
			out := issueStateResult{Issue: issue, State: stateName(state)}
			if state != labelstate.StateNone {
				out.Label = machine.LabelFor(state)
			}
			ui.Infof("Issue #%d: %s", issue, stateName(state))
			outputJSON(out)
		}
	},
}

// runIssueFind lists open issues carrying a state label.
func runIssueFind(ctx context.Context, machine *labelstate.Machine, stateArg string) {
	target, err := parseState(stateArg)
	if err != nil {
		fatal(err)
	}
	issues, err := machine.Find(ctx, target)
	if err != nil {
		fatal(err)
	}
	out := issueFindResult{State: string(target), Issues: []issueRef{}}
	for _, is := range issues {
		out.Issues = append(out.Issues, issueRef{Number: is.Number, Title: is.Title})
	}
	ui.Infof("%d open issue(s) in %s", len(out.Issues), target)
	outputJSON(out)
}

// stateName renders StateNone as a word instead of an empty string.
func stateName(s labelstate.State) string {
	if s == labelstate.StateNone {
		return "none"
	}
	return string(s)
}

// parseState validates an operator-supplied state name.
func parseState(s string) (labelstate.State, error) {
	for _, st := range labelstate.States() {
		if string(st) == s {
			return st, nil
		}
	}
	names := make([]string, 0, len(labelstate.States()))
	for _, st := range labelstate.States() {
		names = append(names, string(st))
	}
	return labelstate.StateNone, fmt.Errorf("unknown state %q (want one of %s)", s, strings.Join(names, ", "))
}

func init() {
	issueStateCmd.Flags().Int("issue", 0, "Issue number")
	issueStateCmd.Flags().String("set", "", "Move the issue to this state")
	issueStateCmd.Flags().Bool("clear", false, "Remove all state labels")
	issueStateCmd.Flags().String("find", "", "List open issues in this state")
	rootCmd.AddCommand(issueStateCmd)
}
