package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshintel/deep-research/pkg/types"
)

func TestSemanticScholarBuildQuery(t *testing.T) {
	kw := types.StructuredKeywords{
		Primary:   "coral bleaching",
		Secondary: []string{"thermal", "reef"},
	}

	a := &SemanticScholarAdapter{}
	q := a.BuildQuery(kw, types.SearchIntent{})
	if q != "coral bleaching AND thermal AND reef" {
		t.Errorf("query = %q", q)
	}
}

func TestSemanticScholarSearchKeepsOnlyOpenAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "" {
			t.Errorf("missing query parameter")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total": 2,
			"data": []map[string]any{
				{
					"paperId":         "abc123",
					"title":           "Open Paper",
					"abstract":        "About reefs.",
					"publicationDate": "2020-05-01",
					"authors":         []map[string]any{{"name": "B. Ocean"}},
					"externalIds":     map[string]any{"ArXiv": "2001.00001"},
					"openAccessPdf":   map[string]any{"url": "https://cdn.example/open.pdf"},
				},
				{
					"paperId": "def456",
					"title":   "Closed Paper",
				},
			},
		})
	}))
	defer srv.Close()

	old := semanticAPIBase
	semanticAPIBase = srv.URL
	defer func() { semanticAPIBase = old }()

	a := &SemanticScholarAdapter{Client: srv.Client()}
	docs, err := a.Search(context.Background(), "reefs", testCfg())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	if docs[0].ID != "arxiv:2001.00001" {
		t.Errorf("ID = %q, want arXiv identifier preferred", docs[0].ID)
	}
	if docs[0].DocumentURI != "https://cdn.example/open.pdf" {
		t.Errorf("DocumentURI = %q", docs[0].DocumentURI)
	}
}

func TestSemanticScholarEmptyQuery(t *testing.T) {
	a := &SemanticScholarAdapter{Client: http.DefaultClient}
	if _, err := a.Search(context.Background(), "", testCfg()); err == nil {
		t.Fatal("expected error for empty query")
	}
}
