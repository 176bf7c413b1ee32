package engine

import (
	"math"
	"time"

	"github.com/lazypower/recollect/internal/config"
)

// Recall growth reaches its cap when access_count hits this value:
// ln(20+1)/ln(21) == 1.
const growthCapCount = 20

const weekMillis = float64(7 * 24 * time.Hour / time.Millisecond)

// Score maps a record's stored stats plus a similarity distance into a single
// comparable value. It is the only scoring function in the codebase: ranking,
// display, and debug paths all call it, so the numbers can never drift apart.
//
//	stability = half_life_weeks * (1 + consolidation_factor * log2(access_count+1))
//	decayed   = importance * 0.5^(weeks_elapsed / stability)
//	score     = similarity * semantic_weight + decayed * (1 - semantic_weight)
//
// distance is assumed to be cosine distance in [0, 1]. The backend is not
// trusted on that: similarity is clamped to [0, 1] so an out-of-range
// distance cannot push scores negative or above the conventional range.
func Score(importance float64, lastAccessed int64, accessCount int, distance float64, now int64, cfg config.ScoringConfig) float64 {
	similarity := 1.0 - distance
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	decayed := DecayedImportance(importance, lastAccessed, accessCount, now, cfg)
	return similarity*cfg.SemanticWeight + decayed*(1.0-cfg.SemanticWeight)
}

// DecayedImportance computes the time-decayed effective importance used for
// ranking. Never persisted: the stored importance field is only mutated by
// recall growth and periodic maintenance.
func DecayedImportance(importance float64, lastAccessed int64, accessCount int, now int64, cfg config.ScoringConfig) float64 {
	weeks := math.Abs(float64(now-lastAccessed)) / weekMillis
	stability := cfg.HalfLifeWeeks * (1.0 + cfg.ConsolidationFactor*math.Log2(float64(accessCount)+1.0))
	if stability <= 0 {
		return importance
	}
	return importance * math.Pow(0.5, weeks/stability)
}

// RecallGrowth is the importance overwrite applied to every memory returned
// by recall: 0.5 + 0.5 * ln(n+1)/ln(21), capped once access_count reaches 20.
// This is deliberately a different curve from the ranking decay above.
func RecallGrowth(accessCount int) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	if accessCount > growthCapCount {
		accessCount = growthCapCount
	}
	return 0.5 + 0.5*math.Log(float64(accessCount)+1.0)/math.Log(float64(growthCapCount)+1.0)
}
