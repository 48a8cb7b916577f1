// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notes extracts page-anchored quotations from acquired
// documents. Pages are partitioned into fixed-size batches processed
// concurrently; each completed batch can be streamed to a sink before
// the document finishes.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/pool"
	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/pkg/types"
)

var notePromptTmpl = template.Must(template.New("notes").Parse(`You are reading pages of an academic paper for a literature review.

Paper: "{{.Title}}"
{{if .Abstract}}Abstract: {{.Abstract}}
{{end}}
Research questions:
{{range .Questions}}- {{.}}
{{end}}
{{if .References}}Reference list (for resolving inline citation markers):
{{range .References}}{{.}}
{{end}}
{{end}}Pages:
{{range .Pages}}--- page {{.Number}} ---
{{.Text}}
{{end}}
Extract every passage from these pages that provides evidence for one of the research questions. For each passage produce:
- quote: the verbatim text (do not paraphrase)
- justification: one sentence tying the quote to the question
- related_question: the research question it addresses, copied exactly
- page_number: the page the quote appears on, from the page markers above
- relevance_score: a float in [0,1]
- citations: inline markers inside the quote resolved against the reference list, as objects with "inline" and "full"

If no passage on these pages is relevant, respond with an empty array []. Respond with a JSON array only.`))

const noteSchemaHint = `Respond with only a JSON array of note objects with keys "quote", "justification", "related_question", "page_number", "relevance_score", and "citations". An empty array is a valid answer. No prose.`

// modelNote mirrors the JSON shape the prompt demands. RelevanceScore
// is a pointer so "omitted" and "zero" stay distinguishable.
type modelNote struct {
	Quote           string           `json:"quote"`
	Justification   string           `json:"justification"`
	RelatedQuestion string           `json:"related_question"`
	PageNumber      int              `json:"page_number"`
	RelevanceScore  *float64         `json:"relevance_score"`
	Citations       []types.Citation `json:"citations"`
}

// Extractor pulls notes out of a document's pages.
type Extractor struct {
	Client *provider.FallbackClient
	Config types.ExtractionConfig
	Log    zerolog.Logger
}

// Extract processes all pages of one document. Batches run with bounded
// concurrency; a failed batch loses only its own notes. When onBatch is
// non-nil it receives each batch's normalized notes as the batch
// completes, before the full document is done. The returned slice is
// ordered by batch, then by model output order within a batch.
func (e *Extractor) Extract(ctx context.Context, doc types.CandidateDocument, pages []types.Page, questions, references []string, onBatch func([]types.ExtractedNote)) ([]types.ExtractedNote, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	batches := partition(pages, e.Config.PagesPerBatch)

	var mu sync.Mutex
	results, err := pool.Run(ctx, len(batches), e.Config.Concurrency, func(ctx context.Context, i int) ([]types.ExtractedNote, error) {
		batchNotes, err := e.extractBatch(ctx, doc, batches[i], questions, references)
		if err != nil {
			return nil, err
		}
		if onBatch != nil && len(batchNotes) > 0 {
			mu.Lock()
			onBatch(batchNotes)
			mu.Unlock()
		}
		return batchNotes, nil
	})
	if err != nil {
		return nil, err
	}

	var all []types.ExtractedNote
	var failed int
	for i, r := range results {
		if r.Err != nil {
			failed++
			e.Log.Warn().Str("id", doc.ID).Int("batch", i).Err(r.Err).Msg("note batch failed")
			continue
		}
		all = append(all, r.Value...)
	}
	if failed == len(batches) {
		return nil, fmt.Errorf("all %d note batches failed for %s", failed, doc.ID)
	}
	return all, nil
}

// extractBatch runs one model call for a contiguous page range and
// normalizes the response.
func (e *Extractor) extractBatch(ctx context.Context, doc types.CandidateDocument, batch []types.Page, questions, references []string) ([]types.ExtractedNote, error) {
	var sb strings.Builder
	err := notePromptTmpl.Execute(&sb, struct {
		Title      string
		Abstract   string
		Questions  []string
		References []string
		Pages      []types.Page
	}{doc.Title, doc.Summary, questions, references, batch})
	if err != nil {
		return nil, fmt.Errorf("rendering note prompt: %w", err)
	}

	raw, err := e.Client.Call(ctx, provider.Prompt{
		Text:       sb.String(),
		SchemaHint: noteSchemaHint,
		MaxTokens:  8192,
	}, e.Config.BatchTimeout)
	if err != nil {
		return nil, err
	}

	var raws []modelNote
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("parsing note response: %w", err)
	}
	return e.normalize(raws, doc, batch, references), nil
}

// normalize validates and repairs model notes: empty quotes are
// discarded, a missing or out-of-range relevance score gets the default,
// page numbers outside the batch snap to the batch's first page, and the
// document URI is always stamped.
func (e *Extractor) normalize(raws []modelNote, doc types.CandidateDocument, batch []types.Page, references []string) []types.ExtractedNote {
	first, last := batch[0].Number, batch[len(batch)-1].Number

	var out []types.ExtractedNote
	for _, r := range raws {
		quote := strings.TrimSpace(r.Quote)
		if quote == "" {
			continue
		}

		score := e.Config.DefaultRelevance
		if r.RelevanceScore != nil && *r.RelevanceScore >= 0 && *r.RelevanceScore <= 1 {
			score = *r.RelevanceScore
		}

		page := r.PageNumber
		if page < first || page > last {
			page = first
		}

		n := types.ExtractedNote{
			Quote:           quote,
			Justification:   strings.TrimSpace(r.Justification),
			RelatedQuestion: strings.TrimSpace(r.RelatedQuestion),
			PageNumber:      page,
			DocumentURI:     doc.DocumentURI,
			RelevanceScore:  score,
			Citations:       resolveCitations(r.Citations, quote, references),
		}
		out = append(out, n)
	}
	return out
}

// partition splits pages into contiguous batches of at most size pages.
func partition(pages []types.Page, size int) [][]types.Page {
	if size <= 0 {
		size = 1
	}
	var batches [][]types.Page
	for start := 0; start < len(pages); start += size {
		end := start + size
		if end > len(pages) {
			end = len(pages)
		}
		batches = append(batches, pages[start:end])
	}
	return batches
}

var inlineMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// resolveCitations keeps the model's resolved citations and fills in any
// numeric markers in the quote the model left unresolved, matching them
// against the reference list by leading "[N]".
func resolveCitations(given []types.Citation, quote string, references []string) []types.Citation {
	seen := make(map[string]bool, len(given))
	var out []types.Citation
	for _, c := range given {
		inline := strings.TrimSpace(c.Inline)
		if inline == "" || seen[inline] {
			continue
		}
		seen[inline] = true
		out = append(out, types.Citation{Inline: inline, Full: strings.TrimSpace(c.Full)})
	}

	for _, m := range inlineMarkerRe.FindAllString(quote, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		if full := lookupReference(m, references); full != "" {
			out = append(out, types.Citation{Inline: m, Full: full})
		}
	}
	return out
}

func lookupReference(marker string, references []string) string {
	for _, ref := range references {
		if strings.HasPrefix(strings.TrimSpace(ref), marker) {
			return strings.TrimSpace(ref)
		}
	}
	return ""
}
