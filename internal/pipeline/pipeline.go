// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates a full research run: planning, search,
// relevance filtering, acquisition, page-text conversion, and note
// extraction, with results persisted as each stage completes.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/fetch"
	"github.com/meshintel/deep-research/internal/filter"
	"github.com/meshintel/deep-research/internal/notes"
	"github.com/meshintel/deep-research/internal/pagetext"
	"github.com/meshintel/deep-research/internal/planner"
	"github.com/meshintel/deep-research/internal/search"
	"github.com/meshintel/deep-research/internal/store"
	"github.com/meshintel/deep-research/pkg/types"
)

// Sink receives pipeline results as they are produced. *store.Store
// satisfies it; tests use lighter fakes.
type Sink interface {
	SaveRun(ctx context.Context, run *types.ResearchRun) error
	UpsertDocuments(ctx context.Context, runID string, docs []types.CandidateDocument) error
	SaveNotes(ctx context.Context, runID string, notes []types.ExtractedNote) error
	UpdateStatus(ctx context.Context, runID, docID string, status types.AnalysisStatus) error
}

var _ Sink = (*store.Store)(nil)

// Pipeline wires the stages together. Sink may be nil for dry runs.
type Pipeline struct {
	Planner   *planner.Planner
	Adapters  []search.Adapter
	Filter    *filter.Filter
	Fetcher   *fetch.Fetcher
	Texter    pagetext.Texter
	Extractor *notes.Extractor
	Sink      Sink
	Config    types.PipelineConfig
	Log       zerolog.Logger
	Progress  io.Writer
}

// Run executes the full pipeline for one research intent. Documents are
// never removed once discovered, only status-transitioned, so the
// returned run always accounts for every filtered candidate. On
// cancellation the unprocessed documents are marked stopped and the run
// is returned alongside ctx.Err().
func (p *Pipeline) Run(ctx context.Context, intent types.SearchIntent) (*types.ResearchRun, error) {
	if intent.IsEmpty() {
		return nil, fmt.Errorf("research intent has no topics or questions")
	}

	run := &types.ResearchRun{
		ID:        uuid.NewString(),
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	p.Log.Info().Str("run", run.ID).Msg("starting research run")

	run.Keywords = p.Planner.Plan(ctx, intent)
	if err := p.saveRun(ctx, run); err != nil {
		return nil, err
	}

	out := search.Search(ctx, run.Keywords, intent, p.Adapters, p.Config.Search, p.progress())
	p.Log.Info().Str("run", run.ID).
		Int("candidates", len(out.Documents)).
		Int("duplicates", out.DupsRemoved).
		Msg("search complete")

	run.Documents = p.Filter.Filter(ctx, out.Documents, intent.Questions, run.Keywords)
	if len(run.Documents) == 0 {
		p.Log.Info().Str("run", run.ID).Msg("no relevant documents found")
		return run, ctx.Err()
	}
	if err := p.saveDocuments(ctx, run); err != nil {
		return nil, err
	}

	p.acquireAndExtract(ctx, run)

	if err := p.saveDocuments(context.WithoutCancel(ctx), run); err != nil {
		return run, err
	}
	p.Log.Info().Str("run", run.ID).
		Int("documents", len(run.Documents)).
		Int("notes", countNotes(run.Documents)).
		Msg("research run finished")
	return run, ctx.Err()
}

// acquireAndExtract downloads the filtered documents concurrently, then
// extracts notes per document. A document failing any stage is marked
// failed and the run continues.
func (p *Pipeline) acquireAndExtract(ctx context.Context, run *types.ResearchRun) {
	docs := run.Documents
	for i := range docs {
		p.setStatus(ctx, run.ID, &docs[i], types.StatusDownloading)
	}

	results := p.Fetcher.FetchAll(ctx, docs, p.Config.Acquisition.Concurrency)

	for i := range docs {
		if ctx.Err() != nil {
			p.setStatus(context.WithoutCancel(ctx), run.ID, &docs[i], types.StatusStopped)
			continue
		}
		if results[i].Err != nil {
			fmt.Fprintf(p.progress(), "failed:  %s (%v)\n", docs[i].ID, results[i].Err)
			p.setStatus(ctx, run.ID, &docs[i], types.StatusFailed)
			continue
		}
		p.processDocument(ctx, run, &docs[i], results[i].Data)
	}
}

// processDocument converts one fetched document to page text and runs
// note extraction, streaming each batch to the sink.
func (p *Pipeline) processDocument(ctx context.Context, run *types.ResearchRun, doc *types.CandidateDocument, data []byte) {
	p.setStatus(ctx, run.ID, doc, types.StatusProcessing)

	pages, err := p.Texter.Pages(ctx, data)
	if err != nil {
		p.failOrStop(ctx, run.ID, doc, err)
		return
	}
	refs := pagetext.References(pages)

	p.setStatus(ctx, run.ID, doc, types.StatusExtracting)
	fmt.Fprintf(p.progress(), "extracting: %s (%d pages)\n", doc.ID, len(pages))

	onBatch := func(batch []types.ExtractedNote) {
		if p.Sink == nil {
			return
		}
		if err := p.Sink.SaveNotes(ctx, run.ID, batch); err != nil {
			p.Log.Warn().Str("run", run.ID).Str("id", doc.ID).Err(err).Msg("streaming notes failed")
		}
	}

	extracted, err := p.Extractor.Extract(ctx, *doc, pages, run.Intent.Questions, refs, onBatch)
	if err != nil {
		p.failOrStop(ctx, run.ID, doc, err)
		return
	}

	doc.Notes = extracted
	p.setStatus(ctx, run.ID, doc, types.StatusCompleted)
	fmt.Fprintf(p.progress(), "completed: %s (%d notes)\n", doc.ID, len(extracted))
}

// failOrStop classifies a mid-document error: a cancelled run marks the
// document stopped, anything else marks it failed.
func (p *Pipeline) failOrStop(ctx context.Context, runID string, doc *types.CandidateDocument, err error) {
	if ctx.Err() != nil {
		p.setStatus(context.WithoutCancel(ctx), runID, doc, types.StatusStopped)
		return
	}
	fmt.Fprintf(p.progress(), "failed:  %s (%v)\n", doc.ID, err)
	p.setStatus(ctx, runID, doc, types.StatusFailed)
}

func (p *Pipeline) setStatus(ctx context.Context, runID string, doc *types.CandidateDocument, status types.AnalysisStatus) {
	doc.AnalysisStatus = status
	if p.Sink == nil {
		return
	}
	if err := p.Sink.UpdateStatus(ctx, runID, doc.ID, status); err != nil {
		p.Log.Warn().Str("run", runID).Str("id", doc.ID).Err(err).Msg("status update failed")
	}
}

func (p *Pipeline) saveRun(ctx context.Context, run *types.ResearchRun) error {
	if p.Sink == nil {
		return nil
	}
	if err := p.Sink.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

func (p *Pipeline) saveDocuments(ctx context.Context, run *types.ResearchRun) error {
	if p.Sink == nil {
		return nil
	}
	if err := p.Sink.UpsertDocuments(ctx, run.ID, run.Documents); err != nil {
		return fmt.Errorf("saving documents: %w", err)
	}
	return nil
}

func (p *Pipeline) progress() io.Writer {
	if p.Progress != nil {
		return p.Progress
	}
	return io.Discard
}

func countNotes(docs []types.CandidateDocument) int {
	var n int
	for _, d := range docs {
		n += len(d.Notes)
	}
	return n
}
