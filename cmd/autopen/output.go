package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pattonant/autopen2.0/internal/database"
	"github.com/pattonant/autopen2.0/internal/phase"
	"github.com/pattonant/autopen2.0/internal/session"
	"github.com/pattonant/autopen2.0/internal/types"
)

var (
	statusColors = map[types.PhaseStatus]*color.Color{
		types.PhaseStatusSucceeded: color.New(color.FgGreen),
		types.PhaseStatusPartial:   color.New(color.FgYellow),
		types.PhaseStatusFailed:    color.New(color.FgRed),
		types.PhaseStatusSkipped:   color.New(color.FgHiBlack),
	}
)

// printRuns renders the pipeline result, honoring --json.
func printRuns(cmd *cobra.Command, sess *session.Session, runs []*phase.Run) {
	if flagJSON {
		out := struct {
			SessionID types.ID     `json:"session_id"`
			Runs      []*phase.Run `json:"runs"`
			Findings  int          `json:"findings"`
		}{sess.ID, runs, sess.Store.Count()}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			cmd.PrintErrf("failed to render result: %v\n", err)
			return
		}
		cmd.Println(string(data))
		return
	}

	cmd.Printf("Session %s\n\n", sess.ID.Short())
	for _, run := range runs {
		c, ok := statusColors[run.Status]
		if !ok {
			c = color.New(color.Reset)
		}

		line := fmt.Sprintf("  %-15s %-10s", run.Phase, c.Sprint(run.Status))
		if run.AdapterCalls > 0 {
			line += fmt.Sprintf("  calls=%d failures=%d", run.AdapterCalls, run.AdapterFailures)
		}
		if run.ErrorSummary != "" {
			line += "  " + run.ErrorSummary
		}
		cmd.Println(line)
	}
	cmd.Printf("\n%d finding(s) recorded\n", sess.Store.Count())
}

// printSessions renders the stored session list.
func printSessions(cmd *cobra.Command, infos []database.SnapshotInfo) {
	if flagJSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			cmd.PrintErrf("failed to render sessions: %v\n", err)
			return
		}
		cmd.Println(string(data))
		return
	}

	if len(infos) == 0 {
		cmd.Println("No stored sessions.")
		return
	}

	for _, info := range infos {
		name := info.Name
		if name == "" {
			name = "(unnamed)"
		}
		cmd.Printf("  %s  %-20s  exported %s\n",
			info.SessionID, name, info.ExportedAt.Format("2006-01-02 15:04:05"))
	}
}
