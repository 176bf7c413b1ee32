package llm

import "fmt"

// ExtractionPrompt asks the model to pull entities and relations out of a
// stored fact. The response must be a JSON object with "entities" and
// "relations" arrays; anything else is discarded by the parser.
func ExtractionPrompt(text string) string {
	return fmt.Sprintf(`Extract named entities and relations from the following text.

Return ONLY a JSON object of this exact shape, no prose:
{
  "entities": [{"name": "...", "type": "..."}],
  "relations": [{"source": "...", "relation": "...", "target": "..."}]
}

Rules:
- "type" is a short category like Person, Organization, Project, Location, Concept.
- Relation predicates are short lowercase verbs like "works_at", "founded", "knows".
- Only include entities actually named in the text. No speculation.
- Empty arrays are fine.

Text:
%s`, text)
}
