// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/deep-research/internal/planner"
	"github.com/meshintel/deep-research/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query academic indexes for candidate documents",
	Long: `Search plans keywords from the intent, queries the enabled adapters
(OpenAlex, Semantic Scholar, optionally grounded web search) in
parallel, and prints the deduplicated candidates as YAML. No relevance
filtering is applied; use run for the full pipeline.`,
	RunE: runSearch,
}

func init() {
	intentFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	intent, err := parseIntent(cmd)
	if err != nil {
		return err
	}

	cfg := buildConfig()
	ctx := cmd.Context()

	p := &planner.Planner{Config: cfg.Planner}
	if cfg.Provider.AnthropicAPIKey != "" || cfg.Provider.GeminiAPIKey != "" {
		client, err := newFallbackClient(ctx, cfg)
		if err != nil {
			return err
		}
		p.Client = client
	}
	kw := p.Plan(ctx, intent)

	adapters, err := newAdapters(ctx, cfg)
	if err != nil {
		return err
	}

	out := search.Search(ctx, kw, intent, adapters, cfg.Search, os.Stderr)
	fmt.Fprintf(os.Stderr, "%d candidates (%d duplicates removed)\n",
		len(out.Documents), out.DupsRemoved)

	return yaml.NewEncoder(os.Stdout).Encode(out.Documents)
}
