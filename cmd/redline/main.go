// Package main provides the redline CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/redline/cli"
	"github.com/richinex/redline/config"
)

var (
	// Global flags
	provider string
	actor    string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "redline",
		Short: "Intent-driven document patch engine",
		Long: `Turns structured edit intents into reviewable patches.

An intent names a target block, an edit type and machine-checkable
constraints. The engine resolves the target, generates candidate
content under a fixed configuration, validates it, and returns a
block patch plus a unified diff. Every stage is audited.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "stub",
		fmt.Sprintf("generation backend (%v)", config.SupportedBackends()))
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "cli", "actor recorded on audit events")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func editCmd() *cobra.Command {
	var docPath string
	var intentPath string
	var apply bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Run one edit intent against a document",
		Long: `Run one edit intent against a markdown document.

Prints the PatchResponse (block patch, text patch, audit info) as JSON.
With --apply, prints or writes the patched document instead. Rejections
print the structured ErrorResponse and exit non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider: provider,
				Actor:    actor,
				Verbose:  verbose,
			}
			return cli.Edit(context.Background(), docPath, intentPath, apply, outPath, opts)
		},
	}

	cmd.Flags().StringVar(&docPath, "doc", "", "path to the document file")
	cmd.Flags().StringVar(&intentPath, "intent", "", "path to the intent JSON file")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the patch and output the patched document")
	cmd.Flags().StringVar(&outPath, "out", "", "write the patched document here instead of stdout")
	cmd.MarkFlagRequired("doc")
	cmd.MarkFlagRequired("intent")

	return cmd
}

func auditCmd() *cobra.Command {
	var dbPath string
	var intentID string
	var eventType string
	var since time.Duration
	var limit int
	var stats bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
		Long: `Query the audit trail database.

Lists hash-chained pipeline events as JSON. An unfiltered listing also
verifies the chain and warns on the first broken link.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.AuditQuery(context.Background(), dbPath, intentID, eventType, since, limit, stats)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", ".redline/audit.db", "audit database path")
	cmd.Flags().StringVar(&intentID, "intent-id", "", "filter by intent id")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of events")
	cmd.Flags().BoolVar(&stats, "stats", false, "print event counts per type instead")

	return cmd
}
