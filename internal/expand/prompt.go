// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package expand

import (
	"bytes"
	"text/template"
)

// expansionPromptTmpl instructs the model to deconstruct the query along
// the four fan-out categories. Every category key must appear in the
// response, as an empty array when the category does not apply, so
// downstream stages can rely on the tags.
var expansionPromptTmpl = template.Must(template.New("expansion").Parse(`You are a query understanding system inside a generative search engine. Deconstruct the user query below into the sub-queries the engine would fan out to.

Perform four analyses:
1. Slot identification: find the explicit and implicit slots in the query (audience, timeframe, constraints, goals) and produce one sub-query per slot that pins the slot down.
2. Latent concept projection: surface implicit information needs that are not literally stated but that a searcher with this query almost certainly has.
3. Rewrites and diversifications: alternative phrasings and more specific variations of the original query.
4. Follow-up questions: questions the searcher is likely to ask next.

User query: {{printf "%q" .Query}}
{{- if .Location}}
Searcher location: {{printf "%q" .Location}}
{{- end}}

Respond with a single valid JSON object with exactly these keys:
- "slot_queries": array
- "latent_intents": array
- "rewrites": array
- "follow_up_questions": array

Each array element is an object with:
- "text": the sub-query text
- "latent_intent": one short sentence naming the underlying information need

Every key must be present. Use an empty array for a category that genuinely does not apply. Do not include any text outside the JSON object.

Example response:
{"slot_queries": [{"text": "half marathon training plan for beginners over 40", "latent_intent": "age-appropriate training load"}], "latent_intents": [{"text": "how to avoid shin splints when training", "latent_intent": "injury prevention for new runners"}], "rewrites": [{"text": "easy half marathon training plan", "latent_intent": "low-effort structured plan"}], "follow_up_questions": [{"text": "what shoes are best for half marathon training?", "latent_intent": "gear selection"}]}
`))

// renderPrompt executes the expansion prompt template.
func renderPrompt(query, location string) (string, error) {
	var buf bytes.Buffer
	err := expansionPromptTmpl.Execute(&buf, struct{ Query, Location string }{query, location})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
