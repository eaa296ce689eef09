package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragtune/internal/config"
	"ragtune/internal/core"
	"ragtune/internal/logging"
)

var (
	runQuery      string
	runBudget     []string
	runLogLevel   string
	runOutputPath string
)

func init() {
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "query to execute (required)")
	runCmd.Flags().StringArrayVar(&runBudget, "budget", nil, "budget override resource=limit (repeatable)")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "warn", "log level: debug, info, warn, error, off")
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "write the full run output as JSON to this file")
	runCmd.MarkFlagRequired("query")
}

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Execute a query through the pipeline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		overrides, err := parseBudgetOverrides(runBudget)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		cfg, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg.ApplyBudgetOverrides(overrides)

		logger, err := logging.NewLogger(runLogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		ctrl, err := config.Build(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := ctrl.Run(ctx, runQuery)
		if err != nil {
			var runErr *core.RunError
			if errors.As(err, &runErr) {
				logger.Error("run failed", zap.Error(runErr.Err), zap.Int("trace_events", len(runErr.Trace.Events)))
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		renderOutput(out)
		if runOutputPath != "" {
			if err := writeOutput(runOutputPath, out); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		}
	},
}

func parseBudgetOverrides(entries []string) (map[string]float64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(entries))
	for _, entry := range entries {
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid budget override %q (want resource=limit)", entry)
		}
		limit, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid budget limit in %q", entry)
		}
		out[strings.TrimSpace(key)] = limit
	}
	return out, nil
}

func renderOutput(out *core.ControllerOutput) {
	fmt.Printf("query: %s\n", out.Query)
	fmt.Printf("documents: %d\n", len(out.Documents))
	for i, doc := range out.Documents {
		fmt.Printf("%3d. [%.4f] %s  %s\n", i+1, doc.Score, doc.ID, snippet(doc.Content, 80))
	}
	fmt.Printf("budget:")
	for _, res := range []string{core.ResourceTokens, core.ResourceRerankDocs, core.ResourceRerankCalls, core.ResourceReformulations, core.ResourceLatencyMS} {
		if used, ok := out.FinalBudgetState[res]; ok {
			fmt.Printf(" %s=%.0f", res, used)
		}
	}
	fmt.Println()
	if events := out.Trace.Find(core.ActionLoopExit); len(events) > 0 {
		fmt.Printf("loop exit: %v\n", events[0].Details["reason"])
	}
}

func writeOutput(path string, out *core.ControllerOutput) error {
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
