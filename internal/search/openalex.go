// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/meshintel/deep-research/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexAdapter queries the OpenAlex Works API using its field-scoped
// boolean filter grammar.
type OpenAlexAdapter struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the adapter identifier.
func (a *OpenAlexAdapter) Name() string { return "openalex" }

// BuildQuery produces a field-scoped boolean query over titles and
// abstracts. The most specific combination leads; the primary keyword is
// OR-ed in as a broad net.
func (a *OpenAlexAdapter) BuildQuery(kw types.StructuredKeywords, _ types.SearchIntent) string {
	var clauses []string
	if len(kw.Combinations) > 0 {
		clauses = append(clauses, "("+kw.Combinations[0]+")")
	}
	if kw.Primary != "" && (len(kw.Combinations) == 0 || kw.Combinations[0] != kw.Primary) {
		clauses = append(clauses, "("+kw.Primary+")")
	}
	if len(clauses) == 0 {
		return ""
	}
	return "title_and_abstract.search:" + strings.Join(clauses, " OR ")
}

// Search queries OpenAlex and normalizes the works into candidate
// documents. Works without a resolvable PDF location are rejected.
func (a *OpenAlexAdapter) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CandidateDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}

	maxResults := cfg.MaxResultsPerAdapter
	if maxResults <= 0 {
		maxResults = 50
	}
	if maxResults > 200 {
		maxResults = 200
	}

	params := url.Values{
		"filter":   {query},
		"per_page": {fmt.Sprintf("%d", maxResults)},
		"page":     {"1"},
	}
	if a.Email != "" {
		params.Set("mailto", a.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var docs []types.CandidateDocument
	for _, work := range oar.Results {
		pdfURL := work.pdfURL()
		if pdfURL == "" {
			continue
		}

		d := types.CandidateDocument{
			ID:            strings.TrimPrefix(work.ID, "https://openalex.org/"),
			Title:         work.Title,
			Summary:       reconstructAbstract(work.AbstractInvertedIndex),
			DocumentURI:   pdfURL,
			PublishedDate: work.PublicationDate,
		}
		if d.PublishedDate == "" && work.PublicationYear > 0 {
			d.PublishedDate = fmt.Sprintf("%d", work.PublicationYear)
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				d.Authors = append(d.Authors, authorship.Author.DisplayName)
			}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where
// it appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
	BestOALocation        openAlexLocation     `json:"best_oa_location"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
}

// pdfURL returns the work's best binary-document location, or "" when
// none of the locations resolve to a PDF.
func (w openAlexWork) pdfURL() string {
	if w.BestOALocation.PDFURL != "" {
		return w.BestOALocation.PDFURL
	}
	if w.PrimaryLocation.PDFURL != "" {
		return w.PrimaryLocation.PDFURL
	}
	return w.OpenAccess.OAURL
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexLocation struct {
	PDFURL string `json:"pdf_url"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}
