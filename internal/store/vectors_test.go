package store

import (
	"math"
	"strings"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	db := testDB(t)

	vec := []float64{0.1, -0.5, 2.25, 0}
	if err := db.SaveVector(MemoryVectorKey("m1"), vec, "test-model"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	got, err := db.GetVector(MemoryVectorKey("m1"))
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got == nil {
		t.Fatal("vector not found")
	}
	if got.Model != "test-model" {
		t.Errorf("model = %q, want test-model", got.Model)
	}
	if got.Dimensions != 4 {
		t.Errorf("dimensions = %d, want 4", got.Dimensions)
	}
	for i := range vec {
		if got.Embedding[i] != vec[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, got.Embedding[i], vec[i])
		}
	}
}

func TestSaveVectorUpsert(t *testing.T) {
	db := testDB(t)

	key := MemoryVectorKey("m1")
	if err := db.SaveVector(key, []float64{1, 0}, "old"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	if err := db.SaveVector(key, []float64{0, 1, 0}, "new"); err != nil {
		t.Fatalf("SaveVector upsert: %v", err)
	}

	got, _ := db.GetVector(key)
	if got.Model != "new" || got.Dimensions != 3 {
		t.Errorf("upsert did not replace: model=%q dims=%d", got.Model, got.Dimensions)
	}
}

func TestNearestMemoriesOrdering(t *testing.T) {
	db := testDB(t)

	// Three unit vectors at increasing angles from the query direction.
	db.SaveVector(MemoryVectorKey("exact"), []float64{1, 0}, "test")
	db.SaveVector(MemoryVectorKey("close"), []float64{0.9, 0.1}, "test")
	db.SaveVector(MemoryVectorKey("far"), []float64{0, 1}, "test")
	// Entity vectors must not leak into memory search.
	db.SaveVector(EntityVectorKey("e1"), []float64{1, 0}, "test")

	hits, err := db.NearestMemories([]float64{1, 0}, 0, nil)
	if err != nil {
		t.Fatalf("NearestMemories: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}

	wantOrder := []string{"exact", "close", "far"}
	for i, want := range wantOrder {
		if MemoryIDFromKey(hits[i].Key) != want {
			t.Errorf("hits[%d] = %s, want %s", i, hits[i].Key, want)
		}
	}
	if hits[0].Distance > 1e-9 {
		t.Errorf("identical vector distance = %v, want ~0", hits[0].Distance)
	}
	if hits[2].Distance < 0.99 {
		t.Errorf("orthogonal vector distance = %v, want ~1", hits[2].Distance)
	}

	// k truncates after sorting.
	hits, err = db.NearestMemories([]float64{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("NearestMemories k=2: %v", err)
	}
	if len(hits) != 2 || MemoryIDFromKey(hits[0].Key) != "exact" {
		t.Errorf("k=2 hits = %v", hits)
	}
}

func TestNearestMemoriesFilter(t *testing.T) {
	db := testDB(t)

	db.SaveVector(MemoryVectorKey("keep"), []float64{1, 0}, "test")
	db.SaveVector(MemoryVectorKey("skip"), []float64{1, 0}, "test")

	hits, err := db.NearestMemories([]float64{1, 0}, 0, func(id string) bool { return id == "keep" })
	if err != nil {
		t.Fatalf("NearestMemories: %v", err)
	}
	if len(hits) != 1 || MemoryIDFromKey(hits[0].Key) != "keep" {
		t.Errorf("filter not applied: %v", hits)
	}
}

func TestNearestMemoriesDimensionMismatch(t *testing.T) {
	db := testDB(t)

	db.SaveVector(MemoryVectorKey("m1"), []float64{1, 0, 0}, "test")

	_, err := db.NearestMemories([]float64{1, 0}, 0, nil)
	if err == nil {
		t.Fatal("expected hard error on dimension mismatch")
	}
	if !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("error = %v, want dimension mismatch", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	for _, tc := range []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{1, 0}, 1},
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 0}, []float64{-1, 0}, -1},
		{[]float64{1, 0}, []float64{0, 0}, 0},    // zero vector
		{[]float64{1, 0}, []float64{1, 0, 0}, 0}, // length mismatch
		{[]float64{2, 0}, []float64{5, 0}, 1},    // magnitude-invariant
	} {
		got := cosineSimilarity(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMemoryIDFromKey(t *testing.T) {
	if got := MemoryIDFromKey(MemoryVectorKey("abc")); got != "abc" {
		t.Errorf("got %q, want abc", got)
	}
	if got := MemoryIDFromKey(EntityVectorKey("abc")); got != "" {
		t.Errorf("entity key should yield empty memory id, got %q", got)
	}
}
