package search

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/meshintel/deep-research/pkg/types"
)

// --- mock adapter ---

type mockAdapter struct {
	name  string
	docs  []types.CandidateDocument
	err   error
	delay time.Duration
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) BuildQuery(kw types.StructuredKeywords, _ types.SearchIntent) string {
	return kw.Primary
}

func (m *mockAdapter) Search(ctx context.Context, _ string, _ types.SearchConfig) ([]types.CandidateDocument, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.docs, m.err
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "test/0.1",
		},
		MaxResultsPerAdapter: 50,
	}
}

func doc(id, uri string) types.CandidateDocument {
	return types.CandidateDocument{ID: id, Title: "Paper " + id, DocumentURI: uri}
}

func TestSearchMergesAdapters(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{name: "openalex", docs: []types.CandidateDocument{doc("W1", "https://a.example/1.pdf")}},
		&mockAdapter{name: "semantic_scholar", docs: []types.CandidateDocument{doc("S1", "https://b.example/2.pdf")}},
	}

	out := Search(context.Background(), types.StructuredKeywords{Primary: "x"}, types.SearchIntent{}, adapters, testCfg(), &bytes.Buffer{})
	if len(out.Documents) != 2 {
		t.Fatalf("len(Documents) = %d, want 2", len(out.Documents))
	}
	for _, d := range out.Documents {
		if d.AnalysisStatus != types.StatusPending {
			t.Errorf("doc %s status = %q, want pending", d.ID, d.AnalysisStatus)
		}
		if d.Source == "" || d.SourceQuery == "" {
			t.Errorf("doc %s missing source stamps: %+v", d.ID, d)
		}
	}
}

func TestSearchAdapterFailureIsIsolated(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{name: "openalex", err: fmt.Errorf("connection refused")},
		&mockAdapter{name: "semantic_scholar", docs: []types.CandidateDocument{doc("S1", "https://b.example/2.pdf")}},
	}

	var w bytes.Buffer
	out := Search(context.Background(), types.StructuredKeywords{Primary: "x"}, types.SearchIntent{}, adapters, testCfg(), &w)
	if len(out.Documents) != 1 {
		t.Fatalf("len(Documents) = %d, want 1", len(out.Documents))
	}
	if len(out.AdapterErrors) != 1 {
		t.Errorf("AdapterErrors = %v, want one entry", out.AdapterErrors)
	}
	if !strings.Contains(w.String(), "openalex") {
		t.Errorf("warning output missing adapter name: %q", w.String())
	}
}

func TestSearchDedupPrefersPriorityAdapter(t *testing.T) {
	shared := "https://Host.example/Same.PDF"
	adapters := []Adapter{
		// Listed low-priority first: merge order must follow the
		// priority table, not argument or arrival order.
		&mockAdapter{name: "semantic_scholar", docs: []types.CandidateDocument{
			{ID: "S1", Title: "From S2", DocumentURI: strings.ToLower(shared)},
		}},
		&mockAdapter{name: "openalex", delay: 10 * time.Millisecond, docs: []types.CandidateDocument{
			{ID: "W1", Title: "From OpenAlex", DocumentURI: shared},
		}},
	}

	out := Search(context.Background(), types.StructuredKeywords{Primary: "x"}, types.SearchIntent{}, adapters, testCfg(), &bytes.Buffer{})
	if len(out.Documents) != 1 {
		t.Fatalf("len(Documents) = %d, want 1", len(out.Documents))
	}
	if out.Documents[0].ID != "W1" {
		t.Errorf("kept doc = %q, want OpenAlex metadata to win", out.Documents[0].ID)
	}
	if out.DupsRemoved != 1 {
		t.Errorf("DupsRemoved = %d, want 1", out.DupsRemoved)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	docs := []types.CandidateDocument{
		doc("A", "https://x.example/p.pdf"),
		doc("B", "https://X.EXAMPLE/p.pdf"),
		doc("C", "https://y.example/q.pdf"),
	}

	once, removed := deduplicate(docs)
	if removed != 1 || len(once) != 2 {
		t.Fatalf("first pass: removed=%d len=%d", removed, len(once))
	}

	twice, removed2 := deduplicate(once)
	if removed2 != 0 {
		t.Errorf("second pass removed %d, want 0", removed2)
	}
	if len(twice) != len(once) {
		t.Errorf("second pass changed the set: %d vs %d", len(twice), len(once))
	}
}

func TestDeduplicateDropsMissingURI(t *testing.T) {
	docs := []types.CandidateDocument{
		doc("A", ""),
		doc("B", "https://x.example/p.pdf"),
	}
	deduped, _ := deduplicate(docs)
	if len(deduped) != 1 || deduped[0].ID != "B" {
		t.Errorf("deduped = %+v, want only B", deduped)
	}
}
