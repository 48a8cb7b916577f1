// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryInitialInterval is the base delay for same-provider retries.
// Package-level var so tests avoid real sleeps.
var retryInitialInterval = 500 * time.Millisecond

// FallbackClient wraps a primary and an optional secondary provider with
// identical timeout, retry, and switch semantics for every call site.
// Transient failures (429, 5xx, network errors) are retried on the same
// provider with exponential backoff; on exhaustion or timeout the call
// moves to the secondary provider with the same prompt. Only when both
// providers fail does a classified *Error cross this boundary.
type FallbackClient struct {
	Primary   Client
	Secondary Client

	// MaxRetries is the per-provider retry count (default 2).
	MaxRetries int
}

// Call generates JSON for the prompt, bounded by timeout per provider
// attempt chain. The returned error, if any, is always a *Error.
func (f *FallbackClient) Call(ctx context.Context, prompt Prompt, timeout time.Duration) (json.RawMessage, error) {
	if f.Primary == nil && f.Secondary == nil {
		return nil, &Error{Kind: KindNoProvider}
	}

	var firstErr error
	for _, c := range []Client{f.Primary, f.Secondary} {
		if c == nil {
			continue
		}
		out, err := f.callOne(ctx, c, prompt, timeout)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		// Caller cancellation is not a provider failure; stop switching.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, classify(firstErr)
}

// callOne runs one provider with timeout and same-provider retries.
func (f *FallbackClient) callOne(ctx context.Context, c Client, prompt Prompt, timeout time.Duration) (json.RawMessage, error) {
	maxRetries := f.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out json.RawMessage
	operation := func() error {
		var err error
		out, err = c.Generate(callCtx, prompt)
		if err == nil {
			return nil
		}

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		if callCtx.Err() != nil {
			return backoff.Permanent(wrapTimeout(c.Name(), err, callCtx))
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = 10 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(maxRetries)), callCtx))
	if err != nil {
		return nil, decorate(c.Name(), err, callCtx)
	}
	return out, nil
}

// wrapTimeout tags an error produced by a deadline-expired context.
func wrapTimeout(name string, err error, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}
	return err
}

// decorate attaches the provider name to a final per-provider failure.
func decorate(name string, err error, ctx context.Context) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}
	var se *statusError
	if errors.As(err, &se) {
		return &Error{Kind: KindProvider, Provider: name, Status: se.status, Err: err}
	}
	return &Error{Kind: KindProvider, Provider: name, Err: err}
}

// classify guarantees the crossing error is a *Error.
func classify(err error) error {
	if err == nil {
		return &Error{Kind: KindNoProvider}
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: KindProvider, Err: err}
}
