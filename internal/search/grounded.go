// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/pkg/types"
)

// academicSites restricts grounded web search to hosts that serve
// open-access paper PDFs.
var academicSites = []string{
	"arxiv.org",
	"biorxiv.org",
	"ncbi.nlm.nih.gov",
	"ssrn.com",
}

// GroundedAdapter discovers papers through a search-grounded language
// model. It covers sources the structured academic APIs miss, at the cost
// of looser metadata, hence its lowest merge priority.
type GroundedAdapter struct {
	client *genai.Client
	model  string
}

// NewGroundedAdapter creates a grounded search adapter.
func NewGroundedAdapter(ctx context.Context, apiKey, model string) (*GroundedAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GroundedAdapter{client: client, model: model}, nil
}

// Name returns the adapter identifier.
func (a *GroundedAdapter) Name() string { return "grounded" }

// BuildQuery produces a natural-language sentence with domain-restriction
// operators, the grammar the grounding tool searches with.
func (a *GroundedAdapter) BuildQuery(kw types.StructuredKeywords, intent types.SearchIntent) string {
	subject := kw.Primary
	if len(intent.Questions) > 0 {
		subject = intent.Questions[0]
	}
	if subject == "" {
		return ""
	}

	sites := make([]string, len(academicSites))
	for i, s := range academicSites {
		sites[i] = "site:" + s
	}
	return fmt.Sprintf("academic papers about %s filetype:pdf (%s)", subject, strings.Join(sites, " OR "))
}

// groundedPaper is the JSON shape the model is asked to emit per paper.
type groundedPaper struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Authors       []string `json:"authors"`
	PDFURL        string   `json:"pdf_url"`
	PublishedDate string   `json:"published_date"`
}

// Search runs the grounded model query and normalizes the reply. Papers
// without a PDF URL are rejected.
func (a *GroundedAdapter) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CandidateDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("empty grounded query")
	}

	maxResults := cfg.MaxResultsPerAdapter
	if maxResults <= 0 {
		maxResults = 50
	}

	prompt := fmt.Sprintf(`Search the web for: %s

List up to %d academic papers you find. Respond with only a JSON array; each element must be {"title": "...", "summary": "...", "authors": ["..."], "pdf_url": "...", "published_date": "..."}. The pdf_url must point directly at a PDF file. Omit papers without a direct PDF link.`, query, maxResults)

	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result, err := a.client.Models.GenerateContent(callCtx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("grounded search request: %w", err)
	}

	raw, err := provider.ExtractJSON(result.Text())
	if err != nil {
		return nil, fmt.Errorf("grounded search response: %w", err)
	}

	var papers []groundedPaper
	if err := json.Unmarshal(raw, &papers); err != nil {
		return nil, fmt.Errorf("parsing grounded search response: %w", err)
	}

	var docs []types.CandidateDocument
	for _, p := range papers {
		uri := strings.TrimSpace(p.PDFURL)
		if uri == "" || !strings.HasPrefix(uri, "http") {
			continue
		}
		docs = append(docs, types.CandidateDocument{
			ID:            groundedID(uri),
			Title:         p.Title,
			Summary:       p.Summary,
			Authors:       p.Authors,
			DocumentURI:   uri,
			PublishedDate: p.PublishedDate,
		})
		if len(docs) >= maxResults {
			break
		}
	}
	return docs, nil
}

// groundedID derives a stable source-scoped ID from the PDF URL, since
// the grounding tool has no identifier scheme of its own.
func groundedID(uri string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(uri, "https://"), "http://")
	trimmed = strings.TrimSuffix(trimmed, ".pdf")
	return "web:" + strings.ToLower(trimmed)
}
