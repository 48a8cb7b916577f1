// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshintel/deep-research/internal/container"
	"github.com/meshintel/deep-research/internal/fetch"
	"github.com/meshintel/deep-research/internal/filter"
	"github.com/meshintel/deep-research/internal/notes"
	"github.com/meshintel/deep-research/internal/pagetext"
	"github.com/meshintel/deep-research/internal/pipeline"
	"github.com/meshintel/deep-research/internal/planner"
	"github.com/meshintel/deep-research/internal/store"
	"github.com/meshintel/deep-research/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full research pipeline",
	Long: `Run executes every stage for one research intent: keyword planning,
multi-source search, relevance filtering, document acquisition,
page-text conversion, and note extraction. Results are persisted to the
research database as they are produced; interrupting the run keeps
everything completed so far.`,
	RunE: runPipeline,
}

func init() {
	intentFlags(runCmd)
	runCmd.Flags().String("pdf-image", pagetext.DefaultImage, "container image for PDF-to-text conversion")
	runCmd.Flags().Bool("export", false, "write the run as YAML to the data directory when finished")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	intent, err := parseIntent(cmd)
	if err != nil {
		return err
	}

	cfg := buildConfig()
	log := newLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newFallbackClient(ctx, cfg)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	adapters, err := newAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	texter, err := newTexter(cmd)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening research database: %w", err)
	}
	defer st.Close()

	p := &pipeline.Pipeline{
		Planner:  &planner.Planner{Client: client, Config: cfg.Planner},
		Adapters: adapters,
		Filter: &filter.Filter{
			Embedder: embedder,
			Selector: &filter.ModelSelector{Client: client, Config: cfg.Filter},
			Config:   cfg.Filter,
			Log:      log.With().Str("component", "filter").Logger(),
		},
		Fetcher: &fetch.Fetcher{
			Config: cfg.Acquisition,
			Log:    log.With().Str("component", "fetch").Logger(),
		},
		Texter: texter,
		Extractor: &notes.Extractor{
			Client: client,
			Config: cfg.Extraction,
			Log:    log.With().Str("component", "notes").Logger(),
		},
		Sink:     st,
		Config:   cfg,
		Log:      log,
		Progress: os.Stderr,
	}

	run, err := p.Run(ctx, intent)
	if err != nil && run == nil {
		return err
	}
	if run != nil {
		fmt.Fprintf(os.Stderr, "run %s: %d documents, %d notes\n",
			run.ID, len(run.Documents), totalNotes(run))

		if export, _ := cmd.Flags().GetBool("export"); export {
			path, exportErr := st.ExportYAML(context.WithoutCancel(ctx), run.ID)
			if exportErr != nil {
				return exportErr
			}
			fmt.Fprintf(os.Stderr, "exported: %s\n", path)
		}
		fmt.Println(run.ID)
	}
	return err
}

// newTexter picks the page-text strategy: the conversion container when
// a runtime is available, otherwise plain-text splitting. Documents the
// plain splitter cannot handle fail individually without aborting the
// run.
func newTexter(cmd *cobra.Command) (pagetext.Texter, error) {
	image, _ := cmd.Flags().GetString("pdf-image")

	rt, err := container.DetectRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; falling back to plain-text splitting\n", err)
		return pagetext.PlainSplitter{}, nil
	}
	ct, err := pagetext.NewContainerTexter(rt, image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; falling back to plain-text splitting\n", err)
		return pagetext.PlainSplitter{}, nil
	}
	return ct, nil
}

func totalNotes(run *types.ResearchRun) int {
	var n int
	for _, d := range run.Documents {
		n += len(d.Notes)
	}
	return n
}
