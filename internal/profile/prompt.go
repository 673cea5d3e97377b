// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package profile

import (
	"bytes"
	"text/template"

	"github.com/pdiddy/fanout-engine/internal/retrieval"
)

// profilePromptTmpl asks the model to synthesize an ideal content profile
// from the top-ranking pages, scored on the five fixed criteria.
var profilePromptTmpl = template.Must(template.New("profile").Parse(`You are a content strategist specializing in generative engine optimization. Analyze the content of the top-ranking pages for a search query and synthesize the ideal content profile for a new piece intended to outperform them.

Search query: {{printf "%q" .Query}}

Top-ranking pages:
{{range .Pages}}
--- rank {{.Rank}}: {{.URL}} ({{.Title}}) ---
{{.Text}}
{{end}}

Based only on the pages above, score the competitive field on exactly these five criteria, each an integer from 0 to 10 with a one-sentence justification:
- extractability: how well structured for machine extraction the winning content is
- evidence_density: how fact-rich and specific the winning content is
- scope_clarity: how explicitly the winning content defines its audience and applicability
- authority_signals: how strongly the winning content signals trustworthy sourcing
- freshness: how recent the winning content needs to be

Then write a brief for content that would outrank these pages, and list target keywords drawn from their shared vocabulary.

Respond with a single valid JSON object with exactly these keys:
- "criteria": object with the five criteria above as keys, each {"score": int, "notes": string}
- "brief": string
- "target_keywords": array of strings

Every key must be present. Do not include any text outside the JSON object.
`))

type promptData struct {
	Query string
	Pages []retrieval.PageContent
}

// renderPrompt executes the profiling prompt template.
func renderPrompt(d promptData) (string, error) {
	var buf bytes.Buffer
	if err := profilePromptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
