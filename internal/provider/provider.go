// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider wraps language-model APIs behind one interface and
// layers timeout, retry, and primary-to-secondary fallback on top. It
// never invents business-logic fallback values; exhaustion surfaces as a
// classified error the caller resolves with its own default.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prompt is one structured-JSON generation request.
type Prompt struct {
	// Text is the full prompt body.
	Text string

	// SchemaHint describes the expected JSON shape. Providers that
	// support constrained output pass it through; others append it to
	// the prompt.
	SchemaHint string

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int
}

// Client generates a JSON document from a prompt. Two interchangeable
// implementations (Anthropic, Gemini) exist behind this interface so the
// fallback client can switch between them.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error)
}

// ErrorKind classifies a provider failure after all local retries.
type ErrorKind int

const (
	// KindTimeout means the call exceeded its deadline on every provider.
	KindTimeout ErrorKind = iota

	// KindProvider means a provider returned an error response.
	KindProvider

	// KindNoProvider means no provider was configured at all.
	KindNoProvider
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProvider:
		return "provider_error"
	case KindNoProvider:
		return "no_provider_configured"
	default:
		return "unknown"
	}
}

// Error is the classified failure crossing the provider boundary.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%s, HTTP %d): %v", e.Kind, e.Provider, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Provider, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a classified timeout failure.
func IsTimeout(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTimeout
}

// statusError carries an HTTP status through a provider implementation so
// the fallback client can classify and decide retryability.
type statusError struct {
	provider string
	status   int
	body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.provider, e.status, e.body)
}

// retryable reports whether a status is worth retrying on the same provider.
func (e *statusError) retryable() bool {
	return e.status == 429 || e.status >= 500
}

// ExtractJSON strips Markdown code fences and leading prose from a model
// response, returning the first JSON object or array found. Models asked
// for bare JSON still occasionally wrap it.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}
	s = s[start:]

	var probe any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	return json.RawMessage(s), nil
}
