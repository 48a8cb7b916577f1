// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// Gemini calls the Google Gemini API. It is the pipeline's secondary
// provider, taking over when the primary fails or times out.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
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
	return &Gemini{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string { return "gemini" }

// Generate sends the prompt with a JSON response MIME type and returns
// the reply's JSON document.
func (g *Gemini) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	text := prompt.Text
	if prompt.SchemaHint != "" {
		text += "\n\nRespond with JSON matching this shape, and nothing else:\n" + prompt.SchemaHint
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("calling Gemini API: %w", err)
	}

	out := result.Text()
	if out == "" {
		return nil, fmt.Errorf("empty Gemini response")
	}
	return ExtractJSON(out)
}
