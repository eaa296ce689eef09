package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ragtune/internal/index"
)

var (
	indexDBPath string
	indexInput  string
)

func init() {
	indexCmd.Flags().StringVar(&indexDBPath, "db", "ragtune.db", "path of the index database")
	indexCmd.Flags().StringVarP(&indexInput, "input", "i", "", "JSONL corpus to ingest (required)")
	indexCmd.MarkFlagRequired("input")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the local full-text index from a JSONL corpus",
	Run: func(cmd *cobra.Command, args []string) {
		docs, err := index.ReadJSONL(indexInput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		store, err := index.Open(indexDBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.Add(docs); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		total, err := store.Count()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("indexed %d documents into %s (%d total)\n", len(docs), indexDBPath, total)
	},
}
