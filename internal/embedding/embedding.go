// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding computes and caches vector embeddings for the
// relevance filter.
package embedding

import "context"

// TaskType distinguishes query-side from document-side embeddings; it is
// part of the cache key because the two are not interchangeable.
type TaskType string

const (
	TaskQuery    TaskType = "retrieval_query"
	TaskDocument TaskType = "retrieval_document"
)

// Embedder computes vector embeddings. A failed embedding is a per-item
// failure: callers score the item zero rather than aborting the run.
type Embedder interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float64, error)
}
