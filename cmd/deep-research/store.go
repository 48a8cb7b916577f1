// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/deep-research/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Query and export stored research runs",
}

var storeShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print a stored run with its documents and notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		run, err := s.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return yaml.NewEncoder(os.Stdout).Encode(run)
	},
}

var storeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over extracted notes across all runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		hits, err := s.SearchNotes(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(os.Stderr, "no matching notes")
			return nil
		}
		return yaml.NewEncoder(os.Stdout).Encode(hits)
	},
}

var storeExportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Write a stored run as YAML to the data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		path, err := s.ExportYAML(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	storeSearchCmd.Flags().Int("limit", 20, "maximum number of notes to return")

	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeSearchCmd)
	storeCmd.AddCommand(storeExportCmd)
	rootCmd.AddCommand(storeCmd)
}

func openStore() (*store.Store, error) {
	cfg := buildConfig()
	s, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening research database: %w", err)
	}
	return s, nil
}
