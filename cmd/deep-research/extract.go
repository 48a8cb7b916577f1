// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/deep-research/internal/notes"
	"github.com/meshintel/deep-research/internal/pagetext"
	"github.com/meshintel/deep-research/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract evidence notes from a local document",
	Long: `Extract converts a local document to page text, then runs note
extraction against the given research questions and prints the notes as
YAML. Useful for re-processing a single downloaded PDF without running
the full pipeline.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringArray("question", nil, "research question (repeatable)")
	extractCmd.Flags().String("pdf-image", pagetext.DefaultImage, "container image for PDF-to-text conversion")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	questions, _ := cmd.Flags().GetStringArray("question")
	if len(questions) == 0 {
		return fmt.Errorf("provide at least one --question")
	}

	cfg := buildConfig()
	log := newLogger()
	ctx := cmd.Context()

	client, err := newFallbackClient(ctx, cfg)
	if err != nil {
		return err
	}
	texter, err := newTexter(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	pages, err := texter.Pages(ctx, data)
	if err != nil {
		return fmt.Errorf("converting %s: %w", args[0], err)
	}
	references := pagetext.References(pages)

	doc := types.CandidateDocument{
		ID:          filepath.Base(args[0]),
		Title:       filepath.Base(args[0]),
		DocumentURI: args[0],
	}

	e := &notes.Extractor{
		Client: client,
		Config: cfg.Extraction,
		Log:    log.With().Str("component", "notes").Logger(),
	}
	extracted, err := e.Extract(ctx, doc, pages, questions, references, func(batch []types.ExtractedNote) {
		fmt.Fprintf(os.Stderr, "extracted: %d notes\n", len(batch))
	})
	if err != nil {
		return err
	}

	return yaml.NewEncoder(os.Stdout).Encode(extracted)
}
