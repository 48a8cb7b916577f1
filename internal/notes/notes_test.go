// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notes

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/pkg/types"
)

// mockProvider answers every Generate call through fn.
type mockProvider struct {
	calls int64
	fn    func(prompt provider.Prompt) (json.RawMessage, error)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Generate(_ context.Context, p provider.Prompt) (json.RawMessage, error) {
	atomic.AddInt64(&m.calls, 1)
	return m.fn(p)
}

func testExtractor(m *mockProvider) *Extractor {
	return &Extractor{
		Client: &provider.FallbackClient{Primary: m},
		Config: types.DefaultPipelineConfig().Extraction,
		Log:    zerolog.Nop(),
	}
}

func makePages(n int) []types.Page {
	pages := make([]types.Page, n)
	for i := range pages {
		pages[i] = types.Page{Number: i + 1, Text: "Text of page."}
	}
	return pages
}

func testDoc() types.CandidateDocument {
	return types.CandidateDocument{
		ID:          "W1",
		Title:       "Reef Futures",
		Summary:     "Warming threatens reefs.",
		DocumentURI: "https://cdn.example/reef.pdf",
	}
}

func notesJSON(t *testing.T, notes []map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(notes)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPartitionSeventeenPages(t *testing.T) {
	batches := partition(makePages(17), 8)
	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3", len(batches))
	}
	for i, want := range []int{8, 8, 1} {
		if len(batches[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(batches[i]), want)
		}
	}
	if batches[2][0].Number != 17 {
		t.Errorf("last batch page = %d, want 17", batches[2][0].Number)
	}
}

func TestExtractEmptyPages(t *testing.T) {
	e := testExtractor(&mockProvider{fn: func(provider.Prompt) (json.RawMessage, error) {
		t.Fatal("provider called for empty document")
		return nil, nil
	}})
	got, err := e.Extract(context.Background(), testDoc(), nil, []string{"q"}, nil, nil)
	if err != nil || got != nil {
		t.Errorf("Extract(no pages) = %v, %v; want nil, nil", got, err)
	}
}

func TestExtractNormalizesNotes(t *testing.T) {
	m := &mockProvider{fn: func(p provider.Prompt) (json.RawMessage, error) {
		return notesJSON(t, []map[string]any{
			{"quote": "Reefs decline at 1.5C.", "related_question": "q", "page_number": 2, "relevance_score": 0.9},
			{"quote": "Recovery takes decades.", "related_question": "q", "page_number": 2},
			{"quote": "   ", "related_question": "q", "page_number": 1},
			{"quote": "Out of range.", "related_question": "q", "page_number": 99},
		}), nil
	}}
	e := testExtractor(m)

	got, err := e.Extract(context.Background(), testDoc(), makePages(3), []string{"q"}, nil, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(notes) = %d, want 3 (empty quote dropped)", len(got))
	}
	if got[0].RelevanceScore != 0.9 {
		t.Errorf("explicit score = %f", got[0].RelevanceScore)
	}
	if got[1].RelevanceScore != 0.75 {
		t.Errorf("defaulted score = %f, want 0.75", got[1].RelevanceScore)
	}
	if got[2].PageNumber != 1 {
		t.Errorf("out-of-range page = %d, want snapped to 1", got[2].PageNumber)
	}
	for _, n := range got {
		if n.DocumentURI != "https://cdn.example/reef.pdf" {
			t.Errorf("note missing document URI: %+v", n)
		}
	}
}

func TestExtractBatchesSeventeenPages(t *testing.T) {
	var seenPages sync.Map
	m := &mockProvider{fn: func(p provider.Prompt) (json.RawMessage, error) {
		for i := 1; i <= 17; i++ {
			marker := "--- page " + strconv.Itoa(i) + " ---"
			if strings.Contains(p.Text, marker) {
				seenPages.Store(i, true)
			}
		}
		return json.RawMessage(`[{"quote":"Q.","related_question":"q","page_number":1}]`), nil
	}}
	e := testExtractor(m)

	got, err := e.Extract(context.Background(), testDoc(), makePages(17), []string{"q"}, nil, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if atomic.LoadInt64(&m.calls) != 3 {
		t.Errorf("provider calls = %d, want 3 batches", m.calls)
	}
	if len(got) != 3 {
		t.Errorf("len(notes) = %d, want one per batch", len(got))
	}
	for i := 1; i <= 17; i++ {
		if _, ok := seenPages.Load(i); !ok {
			t.Errorf("page %d never sent to the model", i)
		}
	}
}

func TestExtractStreamsBatchesBeforeCompletion(t *testing.T) {
	m := &mockProvider{fn: func(provider.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`[{"quote":"Q.","related_question":"q","page_number":1}]`), nil
	}}
	e := testExtractor(m)

	var streamed int
	got, err := e.Extract(context.Background(), testDoc(), makePages(17), []string{"q"}, nil,
		func(batch []types.ExtractedNote) { streamed += len(batch) })
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if streamed != len(got) {
		t.Errorf("streamed %d notes, returned %d; every note must be streamed", streamed, len(got))
	}
}

func TestExtractEmptyArrayIsValid(t *testing.T) {
	m := &mockProvider{fn: func(provider.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`[]`), nil
	}}
	e := testExtractor(m)

	got, err := e.Extract(context.Background(), testDoc(), makePages(2), []string{"q"}, nil, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(notes) = %d, want 0", len(got))
	}
}

func TestExtractPartialBatchFailure(t *testing.T) {
	// The second batch returns garbage; its notes are lost but the
	// document still yields the other batches' notes.
	m := &mockProvider{fn: func(p provider.Prompt) (json.RawMessage, error) {
		if strings.Contains(p.Text, "--- page 9 ---") {
			return json.RawMessage(`not json at all`), nil
		}
		return json.RawMessage(`[{"quote":"Q.","related_question":"q","page_number":1}]`), nil
	}}
	e := testExtractor(m)

	got, err := e.Extract(context.Background(), testDoc(), makePages(17), []string{"q"}, nil, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(notes) = %d, want 2 surviving batches", len(got))
	}
}

func TestExtractAllBatchesFailed(t *testing.T) {
	m := &mockProvider{fn: func(provider.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`garbage`), nil
	}}
	e := testExtractor(m)

	if _, err := e.Extract(context.Background(), testDoc(), makePages(4), []string{"q"}, nil, nil); err == nil {
		t.Fatal("expected error when every batch fails")
	}
}

func TestExtractPromptCarriesGrounding(t *testing.T) {
	var prompt string
	m := &mockProvider{fn: func(p provider.Prompt) (json.RawMessage, error) {
		prompt = p.Text
		return json.RawMessage(`[]`), nil
	}}
	e := testExtractor(m)

	refs := []string{"[1] Smith, A. Reef Decline. Nature, 2020."}
	if _, err := e.Extract(context.Background(), testDoc(), makePages(1), []string{"How fast do reefs decline?"}, refs, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for _, want := range []string{
		"Reef Futures",
		"Warming threatens reefs.",
		"How fast do reefs decline?",
		"[1] Smith, A. Reef Decline. Nature, 2020.",
		"empty array",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestResolveCitations(t *testing.T) {
	refs := []string{
		"[1] Smith, A. Reef Decline. Nature, 2020.",
		"[2] Jones, B. Thermal Limits. Science, 2021.",
	}

	given := []types.Citation{{Inline: "[1]", Full: "Smith 2020"}}
	got := resolveCitations(given, "Decline accelerates [1] beyond limits [2] and [7].", refs)

	if len(got) != 2 {
		t.Fatalf("len(citations) = %d, want 2: %+v", len(got), got)
	}
	if got[0].Full != "Smith 2020" {
		t.Errorf("model-resolved citation overwritten: %+v", got[0])
	}
	if got[1].Inline != "[2]" || !strings.Contains(got[1].Full, "Jones") {
		t.Errorf("unresolved marker not filled from references: %+v", got[1])
	}
}
