package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/lazypower/recollect/internal/config"
	"github.com/lazypower/recollect/internal/llm"
)

// EntityCandidate is a candidate entity pulled from a stored fact.
type EntityCandidate struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RelationCandidate is a candidate (source, relation, target) triple.
type RelationCandidate struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// Extraction is the best-effort output of an extraction strategy.
type Extraction struct {
	Entities  []EntityCandidate
	Relations []RelationCandidate
}

// Extractor pulls entity and relation candidates out of text. Strategies are
// noisy and best-effort; the graph's fuzzy dedup absorbs their variance.
// The strategy is selected once at startup, not per call.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Extraction, error)
}

// NewExtractor selects an extraction strategy from configuration.
func NewExtractor(cfg config.ExtractionConfig) (Extractor, error) {
	switch cfg.Strategy {
	case "off", "":
		return nil, nil
	case "passive":
		return &PassiveExtractor{}, nil
	case "llm":
		client, err := llm.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("llm extractor: %w", err)
		}
		return &LLMExtractor{Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown extraction strategy: %q", cfg.Strategy)
	}
}

// PassiveExtractor finds runs of capitalized words. Cheap and crude; it never
// produces relations.
type PassiveExtractor struct{}

// Extract scans for maximal spans of capitalized words, skipping the first
// word of the text (sentence-initial capitalization carries no signal).
func (p *PassiveExtractor) Extract(_ context.Context, text string) (*Extraction, error) {
	words := strings.Fields(text)
	ex := &Extraction{}
	seen := make(map[string]bool)

	var span []string
	flush := func() {
		if len(span) == 0 {
			return
		}
		name := strings.Join(span, " ")
		span = nil
		if len(name) < 3 || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		ex.Entities = append(ex.Entities, EntityCandidate{Name: name, Type: "Unknown"})
	}

	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if trimmed == "" {
			flush()
			continue
		}
		first, _ := firstRune(trimmed)
		capitalized := unicode.IsUpper(first)
		// A capitalized first word only counts when it continues a span.
		if capitalized && (i > 0 || len(span) > 0) {
			span = append(span, trimmed)
		} else {
			flush()
		}
		// Punctuation after the word ends the span.
		if strings.TrimRight(w, ",.;:!?)\"'") != w {
			flush()
		}
	}
	flush()
	return ex, nil
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// LLMExtractor delegates extraction to an LLM and parses a JSON object out of
// the response.
type LLMExtractor struct {
	Client llm.Client
}

func (l *LLMExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	resp, err := l.Client.Complete(ctx, llm.ExtractionPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}
	return parseExtractionResponse(resp.Content)
}

// parseExtractionResponse extracts the JSON object from the LLM response.
// The response might contain markdown code fences or other wrapper text.
func parseExtractionResponse(content string) (*Extraction, error) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed struct {
		Entities  []EntityCandidate   `json:"entities"`
		Relations []RelationCandidate `json:"relations"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w", err)
	}

	ex := &Extraction{}
	for _, e := range parsed.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if e.Type == "" {
			e.Type = "Unknown"
		}
		ex.Entities = append(ex.Entities, e)
	}
	for _, r := range parsed.Relations {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" || strings.TrimSpace(r.Relation) == "" {
			continue
		}
		ex.Relations = append(ex.Relations, r)
	}
	return ex, nil
}
