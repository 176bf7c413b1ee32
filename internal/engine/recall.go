package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recollect/internal/store"
)

// SearchMode reports which retrieval path produced the results, so callers
// can reason about result quality.
type SearchMode string

const (
	// ModeVector: vector search produced the result set.
	ModeVector SearchMode = "vector"
	// ModeFTSHybrid: vector search was healthy but returned zero candidates;
	// keyword results were used.
	ModeFTSHybrid SearchMode = "fts-hybrid"
	// ModeFTSFallback: the vector path failed outright at query time.
	ModeFTSFallback SearchMode = "fts-fallback"
	// ModeFTSOnly: no embedder is configured.
	ModeFTSOnly SearchMode = "fts-only"
)

// RecallResult is a single recall hit, best first.
type RecallResult struct {
	Memory     store.Memory `json:"memory"`
	Score      float64      `json:"score"`
	Similarity float64      `json:"similarity"`
}

// RecallResponse is the ordered result set plus the path that produced it.
type RecallResponse struct {
	Results []RecallResult `json:"results"`
	Mode    SearchMode     `json:"mode"`
}

// Recall retrieves the memories most relevant to the query: vector search
// first, keyword search when the vector path is absent or empty, tag boost
// applied uniformly, then the feedback loop mutating access stats and
// importance on every returned record.
func (e *Engine) Recall(ctx context.Context, query string, limit int, tr *store.TimeRange) (*RecallResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 10
	}

	now := time.Now().UnixMilli()
	var candidates []RecallResult
	var mode SearchMode
	var tried []string

	if e.Embedder != nil {
		tried = append(tried, "vector")
		hits, err := e.vectorCandidates(ctx, query, limit, tr, now)
		switch {
		case err != nil:
			log.Printf("recall: vector path failed, falling back to keyword: %v", err)
			mode = ModeFTSFallback
		case len(hits) == 0:
			mode = ModeFTSHybrid
		default:
			candidates = hits
			mode = ModeVector
		}
	} else {
		mode = ModeFTSOnly
	}

	if len(candidates) == 0 {
		tried = append(tried, "keyword")
		hits, err := e.keywordCandidates(query, limit, tr, now)
		if err != nil {
			if mode == ModeFTSHybrid {
				// Vector path was healthy and simply found nothing; an empty
				// result is correct even with the keyword index gone.
				return &RecallResponse{Mode: ModeVector}, nil
			}
			log.Printf("recall: keyword path failed: %v", err)
			return nil, &CapabilityError{Tried: tried}
		}
		candidates = hits
	}

	// Tag boost: a stored tag appearing verbatim (case-insensitive) in the
	// raw query bumps the score by a constant, on either path.
	lowerQuery := strings.ToLower(query)
	for i := range candidates {
		for _, tag := range candidates[i].Memory.Tags {
			if tag != "" && strings.Contains(lowerQuery, strings.ToLower(tag)) {
				candidates[i].Score += e.Scoring.TagMatchBoost
				break
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Feedback loop: every returned memory gets last_accessed = now,
	// access_count += 1, and its importance overwritten by the growth curve,
	// in one transaction across the batch.
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Memory.ID
	}
	if err := e.DB.RecallFeedback(ids, now, RecallGrowth); err != nil {
		return nil, fmt.Errorf("recall feedback: %w", err)
	}

	return &RecallResponse{Results: candidates, Mode: mode}, nil
}

// vectorCandidates embeds the query (always recomputed, never cached) and
// scores up to 2*limit nearest memories.
func (e *Engine) vectorCandidates(ctx context.Context, query string, limit int, tr *store.TimeRange, now int64) ([]RecallResult, error) {
	queryVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// The created_at restriction needs the memory rows, so over-fetch keys
	// first and filter below.
	hits, err := e.DB.NearestMemories(queryVec, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = store.MemoryIDFromKey(h.Key)
	}
	memories, err := e.DB.GetMemoriesByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	byID := make(map[string]store.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	var results []RecallResult
	for _, h := range hits {
		m, ok := byID[store.MemoryIDFromKey(h.Key)]
		if !ok || !tr.Contains(m.CreatedAt) {
			continue
		}
		results = append(results, RecallResult{
			Memory:     m,
			Similarity: 1.0 - h.Distance,
			Score:      Score(m.Importance, m.LastAccessed, m.AccessCount, h.Distance, now, e.Scoring),
		})
		if len(results) >= 2*limit {
			break
		}
	}
	return results, nil
}

// keywordCandidates tokenizes the query into a disjunctive FTS match and
// scores hits by their index rank position blended through the same Score
// function (rank position stands in for similarity so bm25 ordering survives
// the blend with decayed importance).
func (e *Engine) keywordCandidates(query string, limit int, tr *store.TimeRange, now int64) ([]RecallResult, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, fmt.Errorf("no usable query tokens")
	}

	hits, err := e.DB.SearchMemoriesFTS(match, limit, tr)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]RecallResult, 0, len(hits))
	for i, h := range hits {
		similarity := 1.0 - float64(i)/float64(len(hits)+1)
		results = append(results, RecallResult{
			Memory:     h.Memory,
			Similarity: similarity,
			Score:      Score(h.Memory.Importance, h.Memory.LastAccessed, h.Memory.AccessCount, 1.0-similarity, now, e.Scoring),
		})
	}
	return results, nil
}

// buildMatchQuery turns free text into a disjunctive FTS5 match expression:
// any token matches. Tokens are quoted to defuse FTS operators.
func buildMatchQuery(query string) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, `""`)
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " OR ")
}
