// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meshintel/deep-research/internal/httputil"
	"github.com/meshintel/deep-research/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,openAccessPdf"

// SemanticScholarAdapter queries the Semantic Scholar API, which takes a
// plain boolean AND string rather than field-scoped syntax.
type SemanticScholarAdapter struct {
	Client *http.Client
	APIKey string
}

// Name returns the adapter identifier.
func (a *SemanticScholarAdapter) Name() string { return "semantic_scholar" }

// BuildQuery joins the primary and secondary keywords into one plain
// AND string, Semantic Scholar's preferred grammar.
func (a *SemanticScholarAdapter) BuildQuery(kw types.StructuredKeywords, _ types.SearchIntent) string {
	var parts []string
	if kw.Primary != "" {
		parts = append(parts, kw.Primary)
	}
	parts = append(parts, kw.Secondary...)
	return strings.Join(parts, " AND ")
}

// Search queries Semantic Scholar, retrying on rate limits, and keeps
// only papers with an open-access PDF location.
func (a *SemanticScholarAdapter) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CandidateDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	maxResults := cfg.MaxResultsPerAdapter
	if maxResults <= 0 {
		maxResults = 50
	}

	params := url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", maxResults)},
		"fields": {semanticFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if a.APIKey != "" {
		req.Header.Set("x-api-key", a.APIKey)
	}

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var docs []types.CandidateDocument
	for _, paper := range sr.Data {
		if paper.OpenAccessPDF.URL == "" {
			continue
		}

		d := types.CandidateDocument{
			ID:            paper.PaperID,
			Title:         paper.Title,
			Summary:       paper.Abstract,
			DocumentURI:   paper.OpenAccessPDF.URL,
			PublishedDate: paper.PublicationDate,
		}
		if d.PublishedDate == "" && paper.Year > 0 {
			d.PublishedDate = fmt.Sprintf("%d", paper.Year)
		}
		if paper.ExternalIDs.ArXiv != "" {
			d.ID = "arxiv:" + paper.ExternalIDs.ArXiv
		} else if paper.ExternalIDs.DOI != "" {
			d.ID = paper.ExternalIDs.DOI
		}
		for _, author := range paper.Authors {
			d.Authors = append(d.Authors, author.Name)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF   semanticOpenAccess  `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticOpenAccess struct {
	URL string `json:"url"`
}
