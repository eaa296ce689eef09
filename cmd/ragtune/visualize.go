package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ragtune/internal/core"
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize <output.json>",
	Short: "Render the decision timeline of a saved run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		var out core.ControllerOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", args[0], err)
			os.Exit(1)
		}
		if out.Trace == nil || len(out.Trace.Events) == 0 {
			fmt.Println("no trace events")
			return
		}

		fmt.Printf("run %s — %q, %d events\n\n", out.Trace.QueryID, out.Query, len(out.Trace.Events))
		start := out.Trace.Events[0].Timestamp
		for _, e := range out.Trace.Events {
			offset := e.Timestamp.Sub(start).Milliseconds()
			fmt.Printf("%6dms  %-12s %-20s %s\n", offset, e.Component, e.Action, detailSummary(e.Details))
		}
	},
}

func detailSummary(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	s := string(raw)
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
