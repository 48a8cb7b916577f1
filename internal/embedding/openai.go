// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/meshintel/deep-research/pkg/types"
)

// rateLimitBaseDelay is the base backoff delay on HTTP 429. Package-level
// var so tests avoid real sleeps.
var rateLimitBaseDelay = 2 * time.Second

const defaultBatchSize = 50

// OpenAI embeds text via the OpenAI embeddings API. Batch requests are
// chunked and retried with jittered exponential backoff on rate limits.
type OpenAI struct {
	client      *openai.Client
	model       string
	batchSize   int
	maxAttempts int
}

// NewOpenAI creates an OpenAI embedder from config.
func NewOpenAI(cfg types.EmbeddingConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAI{
		client:      &client,
		model:       model,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}, nil
}

// Embed computes a single embedding.
func (o *OpenAI) Embed(ctx context.Context, text string, task TaskType) ([]float64, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch computes embeddings for all texts, chunked at the configured
// batch size.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float64, error) {
	var all [][]float64
	for i := 0; i < len(texts); i += o.batchSize {
		end := min(i+o.batchSize, len(texts))
		vecs, err := o.embedChunkWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d-%d: %w", i, end, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// embedChunkWithRetry embeds one chunk, retrying rate-limit errors with
// jittered exponential backoff. Other errors fail immediately.
func (o *OpenAI) embedChunkWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	var vecs [][]float64

	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		vecs = make([][]float64, len(resp.Data))
		for i, data := range resp.Data {
			vecs[i] = data.Embedding
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rateLimitBaseDelay
	b.MaxInterval = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(o.maxAttempts-1)), ctx))
	return vecs, err
}

// isRateLimitError reports whether the error is an HTTP 429.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
