// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search fans a structured query out to academic source adapters
// and merges their results into one deduplicated candidate set.
package search

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/meshintel/deep-research/pkg/types"
)

// Adapter queries a single external source. Each source has a different
// optimal query grammar, so the adapter both builds its query string and
// executes it. Adapter failures never cross this boundary as errors from
// the aggregate: a failed adapter simply contributes zero results.
type Adapter interface {
	Name() string
	BuildQuery(kw types.StructuredKeywords, intent types.SearchIntent) string
	Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CandidateDocument, error)
}

// adapterPriority fixes the merge order: on a duplicate document URI the
// metadata from the higher-priority adapter wins regardless of which
// adapter's response arrived first.
var adapterPriority = map[string]int{
	"openalex":         0,
	"semantic_scholar": 1,
	"grounded":         2,
}

// Output holds the aggregated candidates and per-run statistics.
type Output struct {
	Documents     []types.CandidateDocument
	DupsRemoved   int
	AdapterErrors []string
}

// Search invokes every adapter concurrently, normalizes and merges their
// results in fixed priority order, and deduplicates by lower-cased
// document URI. One adapter's failure or timeout never aborts the
// aggregate.
func Search(ctx context.Context, kw types.StructuredKeywords, intent types.SearchIntent, adapters []Adapter, cfg types.SearchConfig, w io.Writer) Output {
	type adapterResult struct {
		name string
		docs []types.CandidateDocument
		err  error
	}

	ch := make(chan adapterResult, len(adapters))
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			query := a.BuildQuery(kw, intent)
			docs, err := a.Search(ctx, query, cfg)
			for i := range docs {
				docs[i].Source = a.Name()
				docs[i].SourceQuery = query
				docs[i].AnalysisStatus = types.StatusPending
			}
			ch <- adapterResult{name: a.Name(), docs: docs, err: err}
		}(a)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	byAdapter := make(map[string][]types.CandidateDocument)
	var out Output
	for ar := range ch {
		if ar.err != nil {
			msg := fmt.Sprintf("%s: %v", ar.name, ar.err)
			out.AdapterErrors = append(out.AdapterErrors, msg)
			fmt.Fprintf(w, "warning: adapter %s failed: %v\n", ar.name, ar.err)
			continue
		}
		byAdapter[ar.name] = ar.docs
	}

	// Merge in fixed priority order, not arrival order.
	merged := make([]types.CandidateDocument, 0)
	for _, a := range sortedByPriority(adapters) {
		merged = append(merged, byAdapter[a.Name()]...)
	}

	out.Documents, out.DupsRemoved = deduplicate(merged)
	return out
}

// sortedByPriority orders adapters by the fixed priority table. Unknown
// adapters sort last, in their given order.
func sortedByPriority(adapters []Adapter) []Adapter {
	sorted := make([]Adapter, len(adapters))
	copy(sorted, adapters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priority(sorted[i]) < priority(sorted[j])
	})
	return sorted
}

func priority(a Adapter) int {
	if p, ok := adapterPriority[a.Name()]; ok {
		return p
	}
	return len(adapterPriority)
}

// deduplicate drops documents whose lower-cased URI was already seen,
// keeping the first-seen (highest-priority) metadata. Running it twice
// over the same input yields the same set.
func deduplicate(docs []types.CandidateDocument) ([]types.CandidateDocument, int) {
	seen := make(map[string]bool, len(docs))
	deduped := make([]types.CandidateDocument, 0, len(docs))
	removed := 0

	for _, d := range docs {
		key := d.DedupKey()
		if key == "" {
			continue
		}
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		deduped = append(deduped, d)
	}
	return deduped, removed
}
