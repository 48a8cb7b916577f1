// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pagetext turns fetched document bytes into per-page plain
// text for note extraction.
package pagetext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/meshintel/deep-research/internal/container"
	"github.com/meshintel/deep-research/pkg/types"
)

// Texter converts a document's bytes into numbered pages.
type Texter interface {
	Pages(ctx context.Context, data []byte) ([]types.Page, error)
}

// PlainSplitter treats the input as text with form-feed page breaks,
// the convention pdftotext and friends emit. Input without form feeds
// becomes a single page.
type PlainSplitter struct{}

// Pages splits on form feeds and drops blank pages while preserving the
// original page numbering.
func (PlainSplitter) Pages(_ context.Context, data []byte) ([]types.Page, error) {
	chunks := strings.Split(string(data), "\f")

	var pages []types.Page
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		pages = append(pages, types.Page{Number: i + 1, Text: strings.TrimSpace(chunk)})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("document contains no text")
	}
	return pages, nil
}

// DefaultImage is the conversion container image.
const DefaultImage = "pdftotext:latest"

// ContainerTexter pipes PDF bytes through a container image that writes
// form-feed-separated page text to stdout.
type ContainerTexter struct {
	runtime container.Runtime
	image   string
}

// NewContainerTexter verifies the image exists in the runtime before
// returning a usable texter.
func NewContainerTexter(rt container.Runtime, image string) (*ContainerTexter, error) {
	if image == "" {
		image = DefaultImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("conversion image not available in %s: %w", rt.Name(), err)
	}
	return &ContainerTexter{runtime: rt, image: image}, nil
}

// Pages converts the PDF and splits the container's output into pages.
func (c *ContainerTexter) Pages(ctx context.Context, data []byte) ([]types.Page, error) {
	var out bytes.Buffer
	if err := c.runtime.Run(ctx, c.image, bytes.NewReader(data), &out); err != nil {
		return nil, fmt.Errorf("converting document: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("conversion produced empty output")
	}
	return PlainSplitter{}.Pages(ctx, out.Bytes())
}

// References collects the document's reference list from its pages: the
// lines under a "References" or "Bibliography" heading that look like
// numbered entries ("[N] ...").
func References(pages []types.Page) []string {
	var collecting bool
	var refs []string
	var current string

	flush := func() {
		if current != "" {
			refs = append(refs, strings.TrimSpace(current))
			current = ""
		}
	}

	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			trimmed := strings.TrimSpace(line)
			lower := strings.ToLower(trimmed)

			if !collecting {
				if lower == "references" || lower == "bibliography" ||
					strings.HasSuffix(lower, " references") {
					collecting = true
				}
				continue
			}

			if strings.HasPrefix(trimmed, "[") {
				flush()
				current = trimmed
				continue
			}
			// Continuation line of a wrapped entry.
			if current != "" && trimmed != "" {
				current += " " + trimmed
			}
		}
	}
	flush()
	return refs
}
