package engine

import (
	"log"
	"math"
	"time"

	"github.com/lazypower/recollect/internal/store"
)

// immuneTags never decay: memories so tagged are pinned at full importance.
var immuneTags = map[string]bool{
	"core":      true,
	"identity":  true,
	"value":     true,
	"principle": true,
}

const monthMillis = float64(30 * 24 * time.Hour / time.Millisecond)

// MaintenanceImportance computes the periodic-maintenance importance for a
// memory. This is the third, independent importance mutator (alongside
// ranking decay and recall growth) and the only one that can lower importance
// for records never accessed again. changed reports whether the value differs
// from what is stored.
//
// Immune-tagged memories are forced to 1.0, or left alone when already at
// 0.9 or above. Everything else:
//
//	resilience = log2(access_count + 2)
//	decay      = months_elapsed * base_decay_rate / resilience
//	boost      = min(0.9, log2(access_count+1)/log2(21) * 0.9)
//	importance = clamp(0.01, 1.0, 0.1 + boost - decay)
func MaintenanceImportance(m *store.Memory, now int64, baseDecayRate float64) (float64, bool) {
	for _, tag := range m.Tags {
		if immuneTags[tag] {
			if m.Importance >= 0.9 {
				return m.Importance, false
			}
			return 1.0, true
		}
	}

	months := float64(now-m.CreatedAt) / monthMillis
	if months < 0 {
		months = 0
	}
	resilience := math.Log2(float64(m.AccessCount) + 2.0)
	decay := months * baseDecayRate / resilience
	boost := math.Log2(float64(m.AccessCount)+1.0) / math.Log2(21.0) * 0.9
	if boost > 0.9 {
		boost = 0.9
	}

	importance := 0.1 + boost - decay
	if importance < 0.01 {
		importance = 0.01
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance, importance != m.Importance
}

// RunMaintenance evaluates every stored memory, recalled or not, and persists
// the changed importance values in one transaction. Returns how many memories
// were updated.
func (e *Engine) RunMaintenance() (int, error) {
	memories, err := e.DB.ListMemories()
	if err != nil {
		return 0, err
	}

	now := time.Now().UnixMilli()
	updates := make(map[string]float64)
	for i := range memories {
		if imp, changed := MaintenanceImportance(&memories[i], now, e.Scoring.BaseDecayRate); changed {
			updates[memories[i].ID] = imp
		}
	}

	if err := e.DB.SetImportanceBatch(updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// StartMaintenanceTimer runs maintenance on startup and then daily.
func (e *Engine) StartMaintenanceTimer() {
	if updated, err := e.RunMaintenance(); err != nil {
		log.Printf("maintenance error: %v", err)
	} else if updated > 0 {
		log.Printf("maintenance: updated %d memories", updated)
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if updated, err := e.RunMaintenance(); err != nil {
					log.Printf("maintenance error: %v", err)
				} else if updated > 0 {
					log.Printf("maintenance: updated %d memories", updated)
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}
