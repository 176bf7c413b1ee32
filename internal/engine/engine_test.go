package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/recollect/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db := testDB(t)
	eng := New(db, scoringDefaults())
	t.Cleanup(eng.Stop)
	return eng, db
}

// stubEmbedder returns canned vectors per text, or a zero vector of the
// configured dimension for anything unmapped.
type stubEmbedder struct {
	vectors map[string][]float64
	dims    int
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return make([]float64, s.dims), nil
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return s.dims }

// waitFor polls cond until it holds or the deadline passes. Background work is
// fire-and-forget, so tests observe its effects rather than joining on it.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRememberStoresAndEmbeds(t *testing.T) {
	eng, db := testEngine(t)
	eng.SetEmbedder(&stubEmbedder{
		dims:    2,
		vectors: map[string][]float64{"Alice prefers dark mode": {1, 0}},
	})

	id, err := eng.Remember(context.Background(), "Alice prefers dark mode", []string{"preference"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	m, err := db.GetMemory(id)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if m == nil || m.Content != "Alice prefers dark mode" {
		t.Fatalf("stored memory = %+v", m)
	}

	// The embedding lands asynchronously.
	waitFor(t, func() bool {
		vec, _ := db.GetVector(store.MemoryVectorKey(id))
		return vec != nil
	}, "embedding never written")

	vec, _ := db.GetVector(store.MemoryVectorKey(id))
	if vec.Model != "stub" || vec.Dimensions != 2 {
		t.Errorf("vector = %+v", vec)
	}
}

func TestRememberWithPassiveExtraction(t *testing.T) {
	eng, db := testEngine(t)
	eng.SetExtractor(&PassiveExtractor{})

	if _, err := eng.Remember(context.Background(), "Met with Sarah Connor today", nil); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	waitFor(t, func() bool {
		ent, _ := db.GetEntityByName("Sarah Connor")
		return ent != nil
	}, "extracted entity never created")
}

func TestRememberRejectsEmpty(t *testing.T) {
	eng, _ := testEngine(t)
	if _, err := eng.Remember(context.Background(), "   ", nil); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestForget(t *testing.T) {
	eng, db := testEngine(t)

	id, err := eng.Remember(context.Background(), "short-lived", nil)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	if err := eng.Forget(context.Background(), id); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if m, _ := db.GetMemory(id); m != nil {
		t.Error("memory survived Forget")
	}

	if err := eng.Forget(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Forget = %v, want ErrNotFound", err)
	}
}

func TestEmbedMissing(t *testing.T) {
	eng, db := testEngine(t)

	// Rows created before any embedder was configured.
	m1, _ := db.CreateMemory("first fact", nil)
	m2, _ := db.CreateMemory("second fact", nil)
	ent, err := db.CreateEntity("Grace Hopper", "Person", nil)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	// One memory already embedded by the current model.
	if err := db.SaveVector(store.MemoryVectorKey(m1.ID), []float64{1, 0}, "stub"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	eng.SetEmbedder(&stubEmbedder{dims: 2})

	embedded, err := eng.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if embedded != 2 {
		t.Errorf("embedded = %d, want 2 (one memory, one entity)", embedded)
	}

	if vec, _ := db.GetVector(store.MemoryVectorKey(m2.ID)); vec == nil {
		t.Error("missing memory vector not backfilled")
	}
	if vec, _ := db.GetVector(store.EntityVectorKey(ent.ID)); vec == nil {
		t.Error("missing entity vector not backfilled")
	}
}

func TestEmbedMissingReplacesStaleModel(t *testing.T) {
	eng, db := testEngine(t)

	m, _ := db.CreateMemory("fact", nil)
	if err := db.SaveVector(store.MemoryVectorKey(m.ID), []float64{1, 0, 0}, "old-model"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	eng.SetEmbedder(&stubEmbedder{dims: 2})

	embedded, err := eng.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if embedded != 1 {
		t.Errorf("embedded = %d, want 1", embedded)
	}
	vec, _ := db.GetVector(store.MemoryVectorKey(m.ID))
	if vec.Model != "stub" || vec.Dimensions != 2 {
		t.Errorf("stale vector not replaced: %+v", vec)
	}
}

func TestEmbedMissingNoEmbedder(t *testing.T) {
	eng, db := testEngine(t)
	db.CreateMemory("fact", nil)

	embedded, err := eng.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if embedded != 0 {
		t.Errorf("embedded = %d, want 0 without an embedder", embedded)
	}
}
