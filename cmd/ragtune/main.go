package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"ragtune/internal/config"
	"ragtune/internal/registry"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "ragtune",
	Short: "ragtune - budget-aware iterative retrieval reranking",
	Long:  `ragtune decides which retrieved candidates are worth paying to rerank, and stops gracefully when any resource budget runs out.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(visualizeCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragtune %s\n", version)
	},
}

const starterPipeline = `[pipeline]
name = "starter"

[pipeline.budget.limits]
tokens = 4000
rerank_docs = 50
rerank_calls = 10
reformulations = 1
latency_ms = 2000

[pipeline.retrieval]
original_query_depth = 10
num_reformulations = 2
depth_per_reformulation = 5
max_pool_size = 50

[pipeline.components.retriever]
type = "memory"

[pipeline.components.reranker]
type = "lexical"

[pipeline.components.reformulator]
type = "identity"

[pipeline.components.estimator]
type = "baseline"

[pipeline.components.scheduler]
type = "batch"
params = { batch_size = 5 }

[pipeline.components.assembler]
type = "greedy"
`

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter pipeline config",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "pipeline.toml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "refusing to overwrite %s\n", path)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(starterPipeline), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check a pipeline config and its component wiring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
			os.Exit(1)
		}
		if _, err := config.Build(cfg, nil); err != nil {
			fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ok: %s (%s)\n", args[0], cfg.Pipeline.Name)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered component types",
	Run: func(cmd *cobra.Command, args []string) {
		config.RegisterBuiltins(registry.Default, nil)
		listing := registry.Default.List()
		categories := make([]string, 0, len(listing))
		for category := range listing {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Printf("%s:\n", category)
			for _, name := range listing[category] {
				fmt.Printf("  %s\n", name)
			}
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
