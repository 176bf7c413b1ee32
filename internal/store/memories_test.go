package store

import (
	"testing"
	"time"
)

func TestCreateAndGetMemory(t *testing.T) {
	db := testDB(t)

	m, err := db.CreateMemory("  prefers tabs over spaces  ", []string{"preference", "style"})
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if m.Content != "prefers tabs over spaces" {
		t.Errorf("content not trimmed: %q", m.Content)
	}
	if m.Importance != 0.5 {
		t.Errorf("initial importance = %v, want 0.5", m.Importance)
	}
	if m.AccessCount != 0 {
		t.Errorf("initial access_count = %d, want 0", m.AccessCount)
	}
	if m.LastAccessed != m.CreatedAt {
		t.Errorf("last_accessed %d != created_at %d", m.LastAccessed, m.CreatedAt)
	}

	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil {
		t.Fatal("GetMemory returned nil for existing id")
	}
	if got.Content != m.Content {
		t.Errorf("content = %q, want %q", got.Content, m.Content)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "preference" || got.Tags[1] != "style" {
		t.Errorf("tags = %v, want [preference style]", got.Tags)
	}
}

func TestCreateMemoryEmptyContent(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateMemory("   ", nil); err == nil {
		t.Error("expected error for whitespace-only content")
	}
}

func TestGetMemoryMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetMemory("nope")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestDeleteMemoryCleansIndexes(t *testing.T) {
	db := testDB(t)

	m, err := db.CreateMemory("ephemeral fact about kubernetes", nil)
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if err := db.SaveVector(MemoryVectorKey(m.ID), []float64{0.1, 0.2, 0.3}, "test"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	deleted, err := db.DeleteMemory(m.ID)
	if err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteMemory returned false for existing memory")
	}

	if got, _ := db.GetMemory(m.ID); got != nil {
		t.Error("memory row survived delete")
	}
	vec, err := db.GetVector(MemoryVectorKey(m.ID))
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if vec != nil {
		t.Error("vector survived delete")
	}
	if db.FTSEnabled() {
		hits, err := db.SearchMemoriesFTS(`"kubernetes"`, 10, nil)
		if err != nil {
			t.Fatalf("SearchMemoriesFTS: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("fts entry survived delete: %d hits", len(hits))
		}
	}
}

func TestDeleteMemoryMissing(t *testing.T) {
	db := testDB(t)

	deleted, err := db.DeleteMemory("nope")
	if err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if deleted {
		t.Error("DeleteMemory returned true for missing id")
	}
}

func TestSearchMemoriesFTSRangeAndRank(t *testing.T) {
	db := testDB(t)
	if !db.FTSEnabled() {
		t.Skip("fts5 unavailable")
	}

	old, err := db.CreateMemory("golang error handling patterns", nil)
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if _, err := db.CreateMemory("python error handling", nil); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	hits, err := db.SearchMemoriesFTS(`"error" OR "handling"`, 10, nil)
	if err != nil {
		t.Fatalf("SearchMemoriesFTS: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}

	// Exclude everything created before now+1h.
	tr := &TimeRange{From: time.Now().Add(time.Hour).UnixMilli()}
	hits, err = db.SearchMemoriesFTS(`"error"`, 10, tr)
	if err != nil {
		t.Fatalf("SearchMemoriesFTS with range: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("range should exclude all, got %d hits", len(hits))
	}

	// A range containing the rows passes them through.
	tr = &TimeRange{From: old.CreatedAt}
	hits, err = db.SearchMemoriesFTS(`"error"`, 10, tr)
	if err != nil {
		t.Fatalf("SearchMemoriesFTS with range: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func TestSearchMemoriesLike(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateMemory("Alice works at Anthropic", nil); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if _, err := db.CreateMemory("unrelated note", nil); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	memories, err := db.SearchMemoriesLike("ALICE", 10)
	if err != nil {
		t.Fatalf("SearchMemoriesLike: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("got %d memories, want 1", len(memories))
	}
	if memories[0].Content != "Alice works at Anthropic" {
		t.Errorf("unexpected hit: %q", memories[0].Content)
	}
}

func TestRecallFeedback(t *testing.T) {
	db := testDB(t)

	m, err := db.CreateMemory("feedback target", nil)
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	now := time.Now().UnixMilli() + 1000
	grow := func(count int) float64 { return 0.6 + float64(count)*0.01 }

	if err := db.RecallFeedback([]string{m.ID}, now, grow); err != nil {
		t.Fatalf("RecallFeedback: %v", err)
	}

	got, err := db.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", got.AccessCount)
	}
	if got.LastAccessed != now {
		t.Errorf("last_accessed = %d, want %d", got.LastAccessed, now)
	}
	if got.Importance != 0.61 {
		t.Errorf("importance = %v, want 0.61", got.Importance)
	}

	// Second recall bumps the count again.
	if err := db.RecallFeedback([]string{m.ID}, now+1, grow); err != nil {
		t.Fatalf("RecallFeedback: %v", err)
	}
	got, _ = db.GetMemory(m.ID)
	if got.AccessCount != 2 {
		t.Errorf("access_count = %d, want 2", got.AccessCount)
	}
}

func TestRecallFeedbackUnknownIDRollsBack(t *testing.T) {
	db := testDB(t)

	m, err := db.CreateMemory("survivor", nil)
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	now := time.Now().UnixMilli()
	err = db.RecallFeedback([]string{m.ID, "missing"}, now, func(int) float64 { return 0.9 })
	if err == nil {
		t.Fatal("expected error for unknown id in batch")
	}

	// The whole batch rolled back: the known memory is untouched.
	got, _ := db.GetMemory(m.ID)
	if got.AccessCount != 0 {
		t.Errorf("access_count = %d, want 0 after rollback", got.AccessCount)
	}
	if got.Importance != 0.5 {
		t.Errorf("importance = %v, want 0.5 after rollback", got.Importance)
	}
}

func TestSetImportanceBatch(t *testing.T) {
	db := testDB(t)

	a, _ := db.CreateMemory("first", nil)
	b, _ := db.CreateMemory("second", nil)

	err := db.SetImportanceBatch(map[string]float64{a.ID: 0.9, b.ID: 0.1})
	if err != nil {
		t.Fatalf("SetImportanceBatch: %v", err)
	}

	got, _ := db.GetMemory(a.ID)
	if got.Importance != 0.9 {
		t.Errorf("a importance = %v, want 0.9", got.Importance)
	}
	got, _ = db.GetMemory(b.ID)
	if got.Importance != 0.1 {
		t.Errorf("b importance = %v, want 0.1", got.Importance)
	}
}

func TestTimeRangeContains(t *testing.T) {
	var nilRange *TimeRange
	if !nilRange.Contains(123) {
		t.Error("nil range should contain everything")
	}

	tr := &TimeRange{From: 100, To: 200}
	for _, tc := range []struct {
		ts   int64
		want bool
	}{
		{50, false},
		{100, true},
		{150, true},
		{200, true},
		{250, false},
	} {
		if got := tr.Contains(tc.ts); got != tc.want {
			t.Errorf("Contains(%d) = %v, want %v", tc.ts, got, tc.want)
		}
	}

	open := &TimeRange{From: 100}
	if !open.Contains(1 << 40) {
		t.Error("open-ended range should contain large timestamps")
	}
}
