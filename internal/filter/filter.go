// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter narrows hundreds of candidate documents to a bounded
// relevant set in two stages: a cheap cosine-similarity prefilter over
// embeddings, then a model-based selection pass that applies semantic
// judgment vector similarity cannot express. A bracket split plus rescue
// steps keep an overly strict model pass from starving the pipeline.
package filter

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/embedding"
	"github.com/meshintel/deep-research/pkg/types"
)

// Filter runs the two-stage relevance narrowing.
type Filter struct {
	Embedder embedding.Embedder
	Selector Selector
	Config   types.FilterConfig
	Log      zerolog.Logger
}

// Filter scores, prefilters, and selects candidates. An empty return
// means "no relevant results", never an error: every failure mode inside
// degrades to a smaller result set.
//
// Bracket A must complete before Bracket B starts, because B's input is
// what A did not cover.
func (f *Filter) Filter(ctx context.Context, candidates []types.CandidateDocument, questions []string, kw types.StructuredKeywords) []types.CandidateDocument {
	if len(candidates) == 0 {
		return nil
	}

	scored := f.prefilter(ctx, candidates, questions, kw)
	if len(scored) == 0 {
		f.Log.Info().Int("candidates", len(candidates)).Msg("no candidates passed prefilter")
		return nil
	}

	bracketA := scored
	if len(bracketA) > f.Config.BracketSize {
		bracketA = bracketA[:f.Config.BracketSize]
	}
	bracketB := scored[len(bracketA):]

	chosenA := f.selectBracket(ctx, bracketA, questions)

	var chosenB []types.CandidateDocument
	if len(bracketB) > 0 {
		chosenB = f.selectBracket(ctx, bracketB, questions)
	}

	merged := mergeByID(chosenA, chosenB)
	merged = f.topUp(merged, bracketA)

	if len(merged) > f.Config.MaxResults {
		merged = merged[:f.Config.MaxResults]
	}

	f.Log.Info().
		Int("prefiltered", len(scored)).
		Int("bracket_a", len(chosenA)).
		Int("bracket_b", len(chosenB)).
		Int("final", len(merged)).
		Msg("relevance filter complete")
	return merged
}

// prefilter embeds the intent and every candidate, scores each candidate
// by cosine similarity, and keeps those at or above the threshold sorted
// by score descending. A candidate whose embedding failed scores 0.
func (f *Filter) prefilter(ctx context.Context, candidates []types.CandidateDocument, questions []string, kw types.StructuredKeywords) []types.CandidateDocument {
	intentVec, err := f.Embedder.Embed(ctx, intentText(questions, kw), embedding.TaskQuery)
	if err != nil {
		f.Log.Warn().Err(err).Msg("intent embedding failed")
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = strings.TrimSpace(c.Title + "\n" + c.Summary)
	}

	vecs, err := f.Embedder.EmbedBatch(ctx, texts, embedding.TaskDocument)
	if err != nil {
		f.Log.Warn().Err(err).Msg("candidate embedding failed")
		return nil
	}

	var kept []types.CandidateDocument
	for i, c := range candidates {
		score := 0.0
		if i < len(vecs) && vecs[i] != nil {
			score = Cosine(intentVec, vecs[i])
		}
		if score < f.Config.PrefilterThreshold {
			continue
		}
		c.RelevanceScore = score
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})
	return kept
}

// intentText builds the single query-intent string from the questions
// and structured keywords.
func intentText(questions []string, kw types.StructuredKeywords) string {
	parts := append([]string{}, questions...)
	if kw.Primary != "" {
		parts = append(parts, kw.Primary)
	}
	parts = append(parts, kw.Secondary...)
	return strings.Join(parts, "\n")
}

// selectBracket asks the model selector for its picks and maps them back
// to bracket members. When selection or mapping fails entirely it
// rescues the bracket's top picks by cosine score instead of returning
// nothing.
func (f *Filter) selectBracket(ctx context.Context, bracket []types.CandidateDocument, questions []string) []types.CandidateDocument {
	n := f.Config.BracketPick
	if n > len(bracket) {
		n = len(bracket)
	}
	if n == 0 {
		return nil
	}

	selections, err := f.Selector.Select(ctx, bracket, questions, n)
	if err != nil {
		f.Log.Warn().Err(err).Msg("model selection failed, rescuing by cosine order")
		return topByScore(bracket, n)
	}

	mapped := mapSelections(selections, bracket)
	if len(mapped) == 0 {
		f.Log.Warn().Int("selections", len(selections)).Msg("no selection mapped, rescuing by cosine order")
		return topByScore(bracket, n)
	}
	return mapped
}

// mapSelections resolves each model selection to a bracket member. The
// attempts run in order: exact index, exact id, id substring, then
// case-insensitive title substring. Unresolvable selections are dropped,
// so the output never contains a document absent from the bracket.
func mapSelections(selections []Selection, bracket []types.CandidateDocument) []types.CandidateDocument {
	used := make(map[int]bool, len(selections))
	var mapped []types.CandidateDocument

	resolve := func(s Selection) int {
		if s.Index >= 0 && s.Index < len(bracket) {
			return s.Index
		}
		if s.ID != "" {
			for i, c := range bracket {
				if c.ID == s.ID {
					return i
				}
			}
			for i, c := range bracket {
				if strings.Contains(c.ID, s.ID) || strings.Contains(s.ID, c.ID) {
					return i
				}
			}
		}
		if s.Title != "" {
			title := strings.ToLower(s.Title)
			for i, c := range bracket {
				if strings.Contains(strings.ToLower(c.Title), title) {
					return i
				}
			}
		}
		return -1
	}

	for _, s := range selections {
		idx := resolve(s)
		if idx < 0 || used[idx] {
			continue
		}
		used[idx] = true
		mapped = append(mapped, bracket[idx])
	}
	return mapped
}

// topByScore returns the bracket's first n entries; brackets are already
// sorted by cosine score descending.
func topByScore(bracket []types.CandidateDocument, n int) []types.CandidateDocument {
	if n > len(bracket) {
		n = len(bracket)
	}
	out := make([]types.CandidateDocument, n)
	copy(out, bracket[:n])
	return out
}

// mergeByID unions the bracket results, preserving first-seen order.
func mergeByID(a, b []types.CandidateDocument) []types.CandidateDocument {
	seen := make(map[string]bool, len(a)+len(b))
	var merged []types.CandidateDocument
	for _, c := range append(append([]types.CandidateDocument{}, a...), b...) {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}
	return merged
}

// topUp enforces the minimum-yield floor by adding still-unselected
// top-bracket candidates in cosine order until the floor is met or the
// bracket is exhausted.
func (f *Filter) topUp(merged, bracketA []types.CandidateDocument) []types.CandidateDocument {
	if len(merged) >= f.Config.YieldFloor {
		return merged
	}

	seen := make(map[string]bool, len(merged))
	for _, c := range merged {
		seen[c.ID] = true
	}
	for _, c := range bracketA {
		if len(merged) >= f.Config.YieldFloor {
			break
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		merged = append(merged, c)
	}
	return merged
}
