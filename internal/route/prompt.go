// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package route

import (
	"bytes"
	"text/template"
)

// routingPromptTmpl asks the model to pick source types and modalities for
// one sub-query, constrained to the configured universes.
var routingPromptTmpl = template.Must(template.New("routing").Parse(`You are an expert in information retrieval inside a generative search engine. Decide where the best answers for the sub-query below live and in what content shape.

Sub-query: {{printf "%q" .Text}}
{{- if .LatentIntent}}
Underlying information need: {{printf "%q" .LatentIntent}}
{{- end}}

Rules:
1. Select one or more source types, only from this list: {{.SourceTypes}}
2. Select one or more content modalities, only from this list: {{.Modalities}}
3. Respond with a single valid JSON object with exactly the keys "source_types" and "modalities", each a non-empty array of strings copied verbatim from the lists above. Do not include any text outside the JSON object.

Example response:
{"source_types": ["blog", "review site"], "modalities": ["comparison table"]}
`))

type promptData struct {
	Text         string
	LatentIntent string
	SourceTypes  []string
	Modalities   []string
}

// renderPrompt executes the routing prompt template for one sub-query.
func renderPrompt(d promptData) (string, error) {
	var buf bytes.Buffer
	if err := routingPromptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
