// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/meshintel/deep-research/internal/provider"
	"github.com/meshintel/deep-research/pkg/types"
)

// Selection is one model pick, identified redundantly so mapping can
// fall back when the model garbles one field.
type Selection struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UnmarshalJSON defaults Index to -1 so a response carrying only id or
// title does not silently resolve to the bracket's first entry.
func (s *Selection) UnmarshalJSON(data []byte) error {
	type alias Selection
	a := alias{Index: -1}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Selection(a)
	return nil
}

// Selector judges which bracket members actually answer the research
// questions.
type Selector interface {
	Select(ctx context.Context, bracket []types.CandidateDocument, questions []string, n int) ([]Selection, error)
}

const maxAbstractChars = 300

var selectPromptTmpl = template.Must(template.New("select").Parse(`You are screening academic papers for a literature review.

Research questions:
{{range .Questions}}- {{.}}
{{end}}
Candidate papers (index, id, title, abstract):
{{range .Rows}}{{.Index}}. [{{.ID}}] "{{.Title}}" — {{.Abstract}}
{{end}}
Select exactly {{.N}} papers most likely to contain evidence answering the research questions. Prefer primary studies and reviews over editorials. Respond with a JSON array only, one object per selected paper:
[{"index": <number from the list>, "id": "<id>", "title": "<title>"}]`))

const selectSchemaHint = `Respond with only a JSON array of objects with keys "index" (number), "id" (string), and "title" (string). No prose.`

// ModelSelector asks the fallback provider chain to pick from a bracket.
type ModelSelector struct {
	Client *provider.FallbackClient
	Config types.FilterConfig
}

type promptRow struct {
	Index    int
	ID       string
	Title    string
	Abstract string
}

// Select renders the bracket as numbered tuples and parses the model's
// JSON picks. Parsing is lenient about extra fields but strict about the
// array shape.
func (m *ModelSelector) Select(ctx context.Context, bracket []types.CandidateDocument, questions []string, n int) ([]Selection, error) {
	rows := make([]promptRow, len(bracket))
	for i, c := range bracket {
		rows[i] = promptRow{
			Index:    i,
			ID:       c.ID,
			Title:    c.Title,
			Abstract: truncate(c.Summary, maxAbstractChars),
		}
	}

	var sb strings.Builder
	if err := selectPromptTmpl.Execute(&sb, struct {
		Questions []string
		Rows      []promptRow
		N         int
	}{questions, rows, n}); err != nil {
		return nil, fmt.Errorf("rendering selection prompt: %w", err)
	}

	raw, err := m.Client.Call(ctx, provider.Prompt{
		Text:       sb.String(),
		SchemaHint: selectSchemaHint,
		MaxTokens:  4096,
	}, m.Config.SelectTimeout)
	if err != nil {
		return nil, err
	}

	var selections []Selection
	if err := json.Unmarshal(raw, &selections); err != nil {
		return nil, fmt.Errorf("parsing selection response: %w", err)
	}
	return selections, nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
