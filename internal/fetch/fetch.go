// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads candidate documents with a bounded worker
// pool. Every failure carries a classified kind so the pipeline can
// report why a document was lost without parsing error strings.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meshintel/deep-research/internal/pool"
	"github.com/meshintel/deep-research/pkg/types"
)

// Kind classifies why a document could not be acquired.
type Kind string

const (
	KindInvalidURI   Kind = "invalid_uri"
	KindTimeout      Kind = "timeout"
	KindNotPDF       Kind = "not_pdf"
	KindTooLarge     Kind = "too_large"
	KindHTTPError    Kind = "http_error"
	KindNetworkError Kind = "network_error"
)

// Error is a classified acquisition failure.
type Error struct {
	Kind   Kind
	URI    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d from %s", e.Kind, e.Status, e.URI)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URI, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URI)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classified kind of err, or an empty Kind when err
// did not come from this package.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Result pairs a candidate with its fetched bytes or classified error.
type Result struct {
	Document types.CandidateDocument
	Data     []byte
	Err      error
}

// Fetcher downloads documents. The zero HTTP client is replaced with
// one honoring the configured timeout; redirects follow Go's default
// policy of up to ten hops.
type Fetcher struct {
	Client *http.Client
	Config types.AcquisitionConfig
	Log    zerolog.Logger

	clientOnce sync.Once
	httpClient *http.Client
}

// client resolves the HTTP client exactly once, so concurrent fetches
// never write shared state.
func (f *Fetcher) client() *http.Client {
	f.clientOnce.Do(func() {
		f.httpClient = f.Client
		if f.httpClient == nil {
			f.httpClient = &http.Client{Timeout: f.Config.Timeout}
		}
	})
	return f.httpClient
}

// FetchAll downloads all candidates with at most concurrency in flight.
// Individual failures never abort the batch; each result carries its own
// error. The returned slice preserves input order.
func (f *Fetcher) FetchAll(ctx context.Context, docs []types.CandidateDocument, concurrency int) []Result {
	results, _ := pool.Run(ctx, len(docs), concurrency, func(ctx context.Context, i int) ([]byte, error) {
		return f.Fetch(ctx, docs[i].DocumentURI)
	})

	out := make([]Result, len(docs))
	for i, r := range results {
		out[i] = Result{Document: docs[i], Data: r.Value, Err: r.Err}
		if r.Err != nil {
			f.Log.Warn().Str("id", docs[i].ID).Str("kind", string(KindOf(r.Err))).Err(r.Err).Msg("document fetch failed")
		}
	}
	return out
}

// Fetch downloads a single document. The declared Content-Length is
// checked against the size ceiling before any buffering, and the actual
// body length is checked again during the read, so a lying server cannot
// force an oversized allocation.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Kind: KindInvalidURI, URI: uri, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURI, URI: uri, Err: err}
	}
	req.Header.Set("User-Agent", f.Config.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindHTTPError, URI: uri, Status: resp.StatusCode}
	}

	if resp.ContentLength > f.Config.MaxDocumentBytes {
		return nil, &Error{Kind: KindTooLarge, URI: uri,
			Err: fmt.Errorf("declared %d bytes, ceiling %d", resp.ContentLength, f.Config.MaxDocumentBytes)}
	}

	ct := resp.Header.Get("Content-Type")
	if !acceptableContentType(ct) {
		return nil, &Error{Kind: KindNotPDF, URI: uri, Err: fmt.Errorf("content type %q", ct)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.Config.MaxDocumentBytes+1))
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), URI: uri, Err: err}
	}
	if int64(len(data)) > f.Config.MaxDocumentBytes {
		return nil, &Error{Kind: KindTooLarge, URI: uri,
			Err: fmt.Errorf("body exceeds ceiling %d", f.Config.MaxDocumentBytes)}
	}

	// Generic content types get a magic-byte check instead of trust.
	if !strings.Contains(ct, "pdf") && !isPDF(data) {
		return nil, &Error{Kind: KindNotPDF, URI: uri, Err: fmt.Errorf("body is not a PDF")}
	}
	return data, nil
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetworkError
}

// acceptableContentType admits PDF types and generic binary types whose
// bodies are verified by magic bytes. Text and HTML responses are
// landing pages, not documents.
func acceptableContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	switch {
	case ct == "", ct == "application/octet-stream", ct == "binary/octet-stream":
		return true
	case strings.Contains(ct, "pdf"):
		return true
	default:
		return false
	}
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// Save writes data to destPath via a temp file and rename, so a partial
// write never leaves a corrupt document behind.
func Save(data []byte, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing document: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
