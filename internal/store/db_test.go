package store

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemoryMigrates(t *testing.T) {
	db := testDB(t)

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version < 4 {
		t.Errorf("schema version = %d, want >= 4", version)
	}

	tables := []string{"memories", "entities", "entity_observations", "relations", "vectors"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again must be a no-op, not an error.
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestFTSEnabled(t *testing.T) {
	db := testDB(t)
	if !db.FTSEnabled() {
		t.Skip("fts5 not compiled into this sqlite build")
	}

	if _, err := db.CreateMemory("the quick brown fox", nil); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	hits, err := db.SearchMemoriesFTS(`"quick"`, 10, nil)
	if err != nil {
		t.Fatalf("SearchMemoriesFTS: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}
