// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/deep-research/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Derive structured search keywords from a research intent",
	Long: `Plan converts topics and questions into a structured keyword set:
a primary term, up to three secondary terms, and boolean search
combinations. Without a configured provider it produces a deterministic
plan from the intent itself.`,
	RunE: runPlan,
}

func init() {
	intentFlags(planCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	intent, err := parseIntent(cmd)
	if err != nil {
		return err
	}

	cfg := buildConfig()
	p := &planner.Planner{Config: cfg.Planner}

	// Planning works without a provider; only use one when configured.
	if cfg.Provider.AnthropicAPIKey != "" || cfg.Provider.GeminiAPIKey != "" {
		client, err := newFallbackClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		p.Client = client
	}

	kw := p.Plan(cmd.Context(), intent)
	return yaml.NewEncoder(os.Stdout).Encode(kw)
}
