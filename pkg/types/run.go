// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResearchRun records one end-to-end pipeline execution: the intent it
// started from, the plan it derived, and the documents it produced.
type ResearchRun struct {
	// ID is a UUID assigned when the run starts.
	ID string `json:"id" yaml:"id"`

	// Intent is the user-supplied research intent.
	Intent SearchIntent `json:"intent" yaml:"intent"`

	// Keywords is the structured plan derived from the intent.
	Keywords StructuredKeywords `json:"keywords" yaml:"keywords"`

	// CreatedAt is when the run started.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Documents holds the run's candidates with their final statuses and
	// notes.
	Documents []CandidateDocument `json:"documents" yaml:"documents"`
}
