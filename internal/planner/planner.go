// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner converts free-text topics and questions into structured
// search keywords. The model output is treated as untrusted: each field
// is validated independently and repaired from a deterministic fallback,
// so planning never fails outright.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/pkg/types"
)

// maxSecondary caps the secondary keyword list.
const maxSecondary = 3

// planPromptTmpl instructs the model to emit the StructuredKeywords shape.
// Worked examples pin down the conventions: proper nouns stay whole,
// secondary keywords are single words, combinations run most-specific first.
var planPromptTmpl = template.Must(template.New("plan").Parse(`You are a research query planner. Convert the topics and questions below into structured search keywords for academic databases.

Rules:
- "primary" is the single most important search phrase. Preserve proper nouns as one phrase (e.g. "Great Barrier Reef", not "great" + "barrier" + "reef").
- "secondary" holds at most three supporting keywords, each a single word.
- "combinations" are boolean AND-joined search strings ordered from most specific to broadest. The last combination should be broad enough to match on its own.

Example input: topics ["ocean acidification"], questions ["how does it affect shellfish farming"]
Example output:
{"primary": "ocean acidification", "secondary": ["shellfish", "aquaculture", "calcification"], "combinations": ["ocean acidification AND shellfish farming", "ocean acidification AND aquaculture", "ocean acidification"]}

Topics:
{{range .Topics}}- {{.}}
{{end}}
Questions:
{{range .Questions}}- {{.}}
{{end}}`))

const planSchemaHint = `{"primary": "string", "secondary": ["string"], "combinations": ["string"]}`

// Planner produces StructuredKeywords for a search intent.
type Planner struct {
	Client *provider.FallbackClient
	Config types.PlannerConfig
}

// Plan converts the intent into keywords. On any model failure it returns
// the deterministic fallback; on a partially valid response it repairs
// missing fields from the fallback rather than rejecting the response.
func (p *Planner) Plan(ctx context.Context, intent types.SearchIntent) types.StructuredKeywords {
	fb := Fallback(intent)
	if p.Client == nil {
		return fb
	}

	prompt, err := renderPlanPrompt(intent)
	if err != nil {
		return fb
	}

	raw, err := p.Client.Call(ctx, provider.Prompt{
		Text:       prompt,
		SchemaHint: planSchemaHint,
	}, p.Config.CallTimeout)
	if err != nil {
		return fb
	}

	return repair(raw, fb)
}

// Fallback derives keywords without a model: the first topic (or first
// question) leads, the remainder become secondary keywords, and the
// topics themselves serve as combinations.
func Fallback(intent types.SearchIntent) types.StructuredKeywords {
	var kw types.StructuredKeywords

	pool := append(append([]string{}, intent.Topics...), intent.Questions...)
	for _, term := range pool {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if kw.Primary == "" {
			kw.Primary = term
			continue
		}
		if len(kw.Secondary) < maxSecondary {
			kw.Secondary = append(kw.Secondary, term)
		}
	}

	switch {
	case len(intent.Topics) > 0:
		kw.Combinations = compactStrings(intent.Topics)
	case len(intent.Questions) > 0:
		kw.Combinations = compactStrings(intent.Questions)
	}

	return ensureCombinations(kw)
}

// planResponse is the lenient shape the model reply is decoded into.
// Combinations accept nested arrays, which some models produce despite
// the schema hint.
type planResponse struct {
	Primary      string `json:"primary"`
	Secondary    []any  `json:"secondary"`
	Combinations []any  `json:"combinations"`
}

// repair validates the model response field-by-field, filling every
// missing or malformed field from the fallback. One bad field never
// discards the rest of the response.
func repair(raw json.RawMessage, fb types.StructuredKeywords) types.StructuredKeywords {
	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fb
	}

	kw := types.StructuredKeywords{
		Primary:      strings.TrimSpace(resp.Primary),
		Secondary:    flattenStrings(resp.Secondary),
		Combinations: flattenStrings(resp.Combinations),
	}

	if kw.Primary == "" {
		kw.Primary = fb.Primary
	}
	if len(kw.Secondary) == 0 {
		kw.Secondary = fb.Secondary
	}
	if len(kw.Secondary) > maxSecondary {
		kw.Secondary = kw.Secondary[:maxSecondary]
	}
	if len(kw.Combinations) == 0 {
		kw.Combinations = fb.Combinations
	}

	return ensureCombinations(kw)
}

// flattenStrings extracts strings from a heterogeneous JSON array,
// flattening one nesting level: a nested array of terms becomes a single
// AND-joined combination.
func flattenStrings(items []any) []string {
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case []any:
			var terms []string
			for _, inner := range v {
				if s, ok := inner.(string); ok && strings.TrimSpace(s) != "" {
					terms = append(terms, strings.TrimSpace(s))
				}
			}
			if len(terms) > 0 {
				out = append(out, strings.Join(terms, " AND "))
			}
		}
	}
	return out
}

// ensureCombinations upholds the invariant that combinations are
// non-empty whenever primary is.
func ensureCombinations(kw types.StructuredKeywords) types.StructuredKeywords {
	if kw.Primary != "" && len(kw.Combinations) == 0 {
		kw.Combinations = []string{kw.Primary}
	}
	return kw
}

func compactStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func renderPlanPrompt(intent types.SearchIntent) (string, error) {
	var buf bytes.Buffer
	if err := planPromptTmpl.Execute(&buf, intent); err != nil {
		return "", err
	}
	return buf.String(), nil
}
