// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research pipeline.
package types

import "strings"

// AnalysisStatus tracks a candidate document's progress through the pipeline.
// Documents are never removed mid-run, only status-transitioned.
type AnalysisStatus string

const (
	StatusPending     AnalysisStatus = "pending"
	StatusDownloading AnalysisStatus = "downloading"
	StatusProcessing  AnalysisStatus = "processing"
	StatusExtracting  AnalysisStatus = "extracting"
	StatusCompleted   AnalysisStatus = "completed"
	StatusFailed      AnalysisStatus = "failed"
	StatusStopped     AnalysisStatus = "stopped"
)

// CandidateDocument represents a discovered academic source not yet
// confirmed relevant. Instances are owned by the pipeline run that created
// them and mutated in place as they move through acquisition and extraction.
type CandidateDocument struct {
	// ID is a source-scoped unique identifier (OpenAlex work ID, Semantic
	// Scholar paper ID, or a hash of the document URI).
	ID string `json:"id" yaml:"id"`

	// Title is the document title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Summary is the abstract or snippet the source provided.
	Summary string `json:"summary" yaml:"summary"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// DocumentURI is the location of the binary (PDF) document. Its
	// lower-cased form is the identity used for deduplication.
	DocumentURI string `json:"document_uri" yaml:"document_uri"`

	// PublishedDate is free-form and may be empty.
	PublishedDate string `json:"published_date,omitempty" yaml:"published_date,omitempty"`

	// Source identifies which adapter found this document.
	Source string `json:"source" yaml:"source"`

	// SourceQuery is the query string that produced this result.
	SourceQuery string `json:"source_query,omitempty" yaml:"source_query,omitempty"`

	// RelevanceScore is in [0,1]; zero means not yet scored.
	RelevanceScore float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`

	// AnalysisStatus records the document's pipeline stage.
	AnalysisStatus AnalysisStatus `json:"analysis_status" yaml:"analysis_status"`

	// Notes holds the extracted notes once extraction completes.
	Notes []ExtractedNote `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DedupKey returns the identity used for cross-adapter deduplication.
func (d *CandidateDocument) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(d.DocumentURI))
}

// ExtractedNote is a page-anchored quotation answering one of the research
// questions. A note without a non-empty Quote is invalid and is discarded
// before reaching any caller.
type ExtractedNote struct {
	// Quote is the verbatim passage from the document.
	Quote string `json:"quote" yaml:"quote"`

	// Justification ties the quote to the question it answers.
	Justification string `json:"justification" yaml:"justification"`

	// RelatedQuestion is the research question this note addresses.
	RelatedQuestion string `json:"related_question" yaml:"related_question"`

	// PageNumber is the 1-based page the quote appears on.
	PageNumber int `json:"page_number" yaml:"page_number"`

	// DocumentURI matches the source document's URI.
	DocumentURI string `json:"document_uri" yaml:"document_uri"`

	// RelevanceScore is in [0,1]; defaults to 0.75 when the model omits it.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// Citations resolves inline markers within the quote against the
	// document's reference list.
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// Page is one page of a document's extracted text.
type Page struct {
	// Number is 1-based.
	Number int `json:"number" yaml:"number"`

	// Text is the page's plain text.
	Text string `json:"text" yaml:"text"`
}

// Citation links an in-text marker to its resolved reference entry.
type Citation struct {
	// Inline is the marker as it appears in the text (e.g. "[1]").
	Inline string `json:"inline" yaml:"inline"`

	// Full is the resolved reference text.
	Full string `json:"full" yaml:"full"`
}
