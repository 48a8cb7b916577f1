// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/embedding"
	"github.com/meshintel/deep-research/internal/fetch"
	"github.com/meshintel/deep-research/internal/filter"
	"github.com/meshintel/deep-research/internal/notes"
	"github.com/meshintel/deep-research/internal/pagetext"
	"github.com/meshintel/deep-research/internal/planner"
	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/internal/search"
	"github.com/meshintel/deep-research/pkg/types"
)

// --- fakes ---

type fakeSink struct {
	mu       sync.Mutex
	runs     int
	upserts  int
	notes    []types.ExtractedNote
	statuses map[string][]types.AnalysisStatus
}

func newFakeSink() *fakeSink {
	return &fakeSink{statuses: make(map[string][]types.AnalysisStatus)}
}

func (f *fakeSink) SaveRun(_ context.Context, _ *types.ResearchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeSink) UpsertDocuments(_ context.Context, _ string, _ []types.CandidateDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return nil
}

func (f *fakeSink) SaveNotes(_ context.Context, _ string, batch []types.ExtractedNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, batch...)
	return nil
}

func (f *fakeSink) UpdateStatus(_ context.Context, _ string, docID string, status types.AnalysisStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[docID] = append(f.statuses[docID], status)
	return nil
}

type fakeAdapter struct {
	docs []types.CandidateDocument
}

func (f *fakeAdapter) Name() string { return "openalex" }

func (f *fakeAdapter) BuildQuery(kw types.StructuredKeywords, _ types.SearchIntent) string {
	return kw.Primary
}

func (f *fakeAdapter) Search(_ context.Context, _ string, _ types.SearchConfig) ([]types.CandidateDocument, error) {
	return f.docs, nil
}

// constEmbedder scores every candidate identically at the given cosine.
type constEmbedder struct{ score float64 }

func (c *constEmbedder) Embed(_ context.Context, _ string, _ embedding.TaskType) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (c *constEmbedder) EmbedBatch(_ context.Context, texts []string, _ embedding.TaskType) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{c.score, 1 - c.score}
	}
	return out, nil
}

type pickAllSelector struct{}

func (pickAllSelector) Select(_ context.Context, bracket []types.CandidateDocument, _ []string, n int) ([]filter.Selection, error) {
	sels := make([]filter.Selection, 0, n)
	for i := range bracket {
		if len(sels) == n {
			break
		}
		sels = append(sels, filter.Selection{Index: i, ID: bracket[i].ID})
	}
	return sels, nil
}

type noteProvider struct{}

func (noteProvider) Name() string { return "mock" }

func (noteProvider) Generate(_ context.Context, _ provider.Prompt) (json.RawMessage, error) {
	return json.RawMessage(`[{"quote":"Evidence.","related_question":"q","page_number":1,"relevance_score":0.8}]`), nil
}

// cancellingProvider cancels the run mid-extraction and returns an
// unusable reply, simulating an interrupt while a batch is in flight.
type cancellingProvider struct{ cancel context.CancelFunc }

func (cancellingProvider) Name() string { return "mock" }

func (p cancellingProvider) Generate(_ context.Context, _ provider.Prompt) (json.RawMessage, error) {
	p.cancel()
	return json.RawMessage(`no notes here`), nil
}

func testPipeline(t *testing.T, docs []types.CandidateDocument, sink Sink, client *http.Client) *Pipeline {
	t.Helper()
	cfg := types.DefaultPipelineConfig()
	return &Pipeline{
		Planner:  &planner.Planner{Config: cfg.Planner},
		Adapters: []search.Adapter{&fakeAdapter{docs: docs}},
		Filter: &filter.Filter{
			Embedder: &constEmbedder{score: 0.9},
			Selector: pickAllSelector{},
			Config:   cfg.Filter,
			Log:      zerolog.Nop(),
		},
		Fetcher:   &fetch.Fetcher{Client: client, Config: cfg.Acquisition, Log: zerolog.Nop()},
		Texter:    pagetext.PlainSplitter{},
		Extractor: &notes.Extractor{Client: &provider.FallbackClient{Primary: noteProvider{}}, Config: cfg.Extraction, Log: zerolog.Nop()},
		Sink:      sink,
		Config:    cfg,
		Log:       zerolog.Nop(),
		Progress:  &bytes.Buffer{},
	}
}

func testIntent() types.SearchIntent {
	return types.SearchIntent{
		Topics:    []string{"coral bleaching"},
		Questions: []string{"How fast do reefs decline?"},
	}
}

// --- tests ---

func TestRunEmptyIntent(t *testing.T) {
	p := testPipeline(t, nil, nil, http.DefaultClient)
	if _, err := p.Run(context.Background(), types.SearchIntent{}); err == nil {
		t.Fatal("expected error for empty intent")
	}
}

func TestRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.pdf" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 first page text\fsecond page text"))
	}))
	defer srv.Close()

	docs := []types.CandidateDocument{
		{ID: "W1", Title: "Reef Futures", Summary: "Abstract.", DocumentURI: srv.URL + "/good.pdf"},
		{ID: "W2", Title: "Lost Paper", Summary: "Abstract.", DocumentURI: srv.URL + "/gone.pdf"},
	}
	sink := newFakeSink()
	p := testPipeline(t, docs, sink, srv.Client())

	run, err := p.Run(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.ID == "" {
		t.Error("run has no ID")
	}
	if len(run.Documents) != 2 {
		t.Fatalf("len(Documents) = %d, want 2 (failures stay in the run)", len(run.Documents))
	}

	byID := make(map[string]types.CandidateDocument)
	for _, d := range run.Documents {
		byID[d.ID] = d
	}
	if byID["W1"].AnalysisStatus != types.StatusCompleted {
		t.Errorf("W1 status = %q, want completed", byID["W1"].AnalysisStatus)
	}
	if byID["W2"].AnalysisStatus != types.StatusFailed {
		t.Errorf("W2 status = %q, want failed", byID["W2"].AnalysisStatus)
	}
	if len(byID["W1"].Notes) == 0 {
		t.Error("completed document has no notes")
	}
	for _, n := range byID["W1"].Notes {
		if n.DocumentURI != byID["W1"].DocumentURI {
			t.Errorf("note URI = %q", n.DocumentURI)
		}
	}

	if sink.runs != 1 {
		t.Errorf("SaveRun calls = %d, want 1", sink.runs)
	}
	if sink.upserts < 2 {
		t.Errorf("UpsertDocuments calls = %d, want at least initial and final", sink.upserts)
	}
	if len(sink.notes) != len(byID["W1"].Notes) {
		t.Errorf("streamed %d notes, document has %d", len(sink.notes), len(byID["W1"].Notes))
	}
	wantOrder := []types.AnalysisStatus{
		types.StatusDownloading, types.StatusProcessing, types.StatusExtracting, types.StatusCompleted,
	}
	if got := sink.statuses["W1"]; len(got) != len(wantOrder) {
		t.Errorf("W1 transitions = %v, want %v", got, wantOrder)
	} else {
		for i := range wantOrder {
			if got[i] != wantOrder[i] {
				t.Errorf("W1 transition %d = %q, want %q", i, got[i], wantOrder[i])
			}
		}
	}
}

func TestRunNoRelevantDocuments(t *testing.T) {
	docs := []types.CandidateDocument{
		{ID: "W1", Title: "Off Topic", Summary: "Unrelated.", DocumentURI: "https://x.example/a.pdf"},
	}
	sink := newFakeSink()
	p := testPipeline(t, docs, sink, http.DefaultClient)
	p.Filter.Embedder = &constEmbedder{score: 0.1}

	run, err := p.Run(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Documents) != 0 {
		t.Errorf("len(Documents) = %d, want 0", len(run.Documents))
	}
	if sink.runs != 1 {
		t.Errorf("run record not saved before filtering: %d", sink.runs)
	}
}

func TestAcquireCancellationMarksStopped(t *testing.T) {
	sink := newFakeSink()
	p := testPipeline(t, nil, sink, http.DefaultClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := &types.ResearchRun{
		ID: "run-x",
		Documents: []types.CandidateDocument{
			{ID: "W1", DocumentURI: "https://x.example/a.pdf"},
			{ID: "W2", DocumentURI: "https://x.example/b.pdf"},
		},
	}
	p.acquireAndExtract(ctx, run)

	for _, d := range run.Documents {
		if d.AnalysisStatus != types.StatusStopped {
			t.Errorf("%s status = %q, want stopped", d.ID, d.AnalysisStatus)
		}
	}
}

func TestExtractCancellationMarksStopped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 page text"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := []types.CandidateDocument{
		{ID: "W1", Title: "Reef Futures", Summary: "Abstract.", DocumentURI: srv.URL + "/good.pdf"},
	}
	sink := newFakeSink()
	p := testPipeline(t, docs, sink, srv.Client())
	p.Extractor.Client = &provider.FallbackClient{Primary: cancellingProvider{cancel: cancel}}

	run, err := p.Run(ctx, testIntent())
	if err == nil {
		t.Fatal("expected the context error from a cancelled run")
	}
	if run == nil {
		t.Fatal("cancelled run should still return partial results")
	}
	if got := run.Documents[0].AnalysisStatus; got != types.StatusStopped {
		t.Errorf("status = %q, want stopped for a document cancelled mid-extraction", got)
	}
	transitions := sink.statuses["W1"]
	if len(transitions) == 0 || transitions[len(transitions)-1] != types.StatusStopped {
		t.Errorf("W1 transitions = %v, want final stopped", transitions)
	}
}

func TestRunWithoutSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 page text"))
	}))
	defer srv.Close()

	docs := []types.CandidateDocument{
		{ID: "W1", Title: "Reef Futures", Summary: "Abstract.", DocumentURI: srv.URL + "/good.pdf"},
	}
	p := testPipeline(t, docs, nil, srv.Client())

	run, err := p.Run(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Documents[0].AnalysisStatus != types.StatusCompleted {
		t.Errorf("status = %q, want completed without a sink", run.Documents[0].AnalysisStatus)
	}
}
