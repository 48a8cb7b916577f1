// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SearchIntent is the immutable free-text input to query planning,
// created once per research session.
type SearchIntent struct {
	// Topics are the research topics, most important first.
	Topics []string `json:"topics" yaml:"topics"`

	// Questions are the questions the extracted notes should answer.
	Questions []string `json:"questions" yaml:"questions"`
}

// IsEmpty reports whether the intent contains no searchable terms.
func (s SearchIntent) IsEmpty() bool {
	return len(s.Topics) == 0 && len(s.Questions) == 0
}

// StructuredKeywords is the planner's output: a keyword object the search
// adapters turn into source-specific query strings.
type StructuredKeywords struct {
	// Primary is the single most important search phrase.
	Primary string `json:"primary" yaml:"primary"`

	// Secondary holds at most three supporting keywords, each ideally
	// a single word.
	Secondary []string `json:"secondary" yaml:"secondary"`

	// Combinations are boolean AND-joined phrases ordered most-specific
	// first. Non-empty whenever Primary is non-empty.
	Combinations []string `json:"combinations" yaml:"combinations"`
}
