package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrConstraint reports a uniqueness violation (e.g. renaming an entity onto
// an existing name). The enclosing transaction is rolled back.
var ErrConstraint = errors.New("uniqueness constraint violated")

// Entity is a named node in the knowledge graph.
type Entity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Observations []string `json:"observations"`
	Importance   float64  `json:"importance"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

// CreateEntity inserts a new entity row and its observations in one
// transaction. Name uniqueness is enforced by the schema; fuzzy dedup against
// near-duplicate names happens above the store, in the engine.
func (db *DB) CreateEntity(name, typ string, observations []string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty entity name")
	}
	if typ == "" {
		typ = "Unknown"
	}

	now := time.Now().UnixMilli()
	e := &Entity{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       typ,
		Importance: 0.5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create entity: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO entities (id, name, type, importance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Name, e.Type, e.Importance, e.CreatedAt, e.UpdatedAt); err != nil {
		tx.Rollback()
		if isConstraintErr(err) {
			return nil, fmt.Errorf("entity %q: %w", name, ErrConstraint)
		}
		return nil, fmt.Errorf("create entity: %w", err)
	}

	for _, obs := range observations {
		obs = strings.TrimSpace(obs)
		if obs == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO entity_observations (entity_id, content, created_at)
			VALUES (?, ?, ?)
		`, e.ID, obs, now); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("create observation: %w", err)
		}
		e.Observations = append(e.Observations, obs)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create entity: %w", err)
	}
	return e, nil
}

// GetEntityByName returns an entity with its merged observations, or nil.
func (db *DB) GetEntityByName(name string) (*Entity, error) {
	return db.getEntity("name", name)
}

// GetEntityByID returns an entity with its merged observations, or nil.
func (db *DB) GetEntityByID(id string) (*Entity, error) {
	return db.getEntity("id", id)
}

func (db *DB) getEntity(column, value string) (*Entity, error) {
	var e Entity
	var legacy sql.NullString
	err := db.QueryRow(fmt.Sprintf(`
		SELECT id, name, type, observations, importance, created_at, updated_at
		FROM entities WHERE %s = ?
	`, column), value).Scan(&e.ID, &e.Name, &e.Type, &legacy, &e.Importance, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	obs, err := db.entityObservations(e.ID)
	if err != nil {
		return nil, err
	}
	e.Observations = mergeObservations(legacy.String, obs)
	return &e, nil
}

// entityObservations returns child-table observations in insertion order.
func (db *DB) entityObservations(entityID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT content FROM entity_observations
		WHERE entity_id = ? ORDER BY id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("get observations: %w", err)
	}
	defer rows.Close()

	var obs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs = append(obs, s)
	}
	return obs, rows.Err()
}

// mergeObservations combines the legacy inline JSON list with the child
// collection, deduplicated, legacy entries first (they predate the table).
func mergeObservations(legacyJSON string, child []string) []string {
	var legacy []string
	if legacyJSON != "" {
		if err := json.Unmarshal([]byte(legacyJSON), &legacy); err != nil {
			legacy = nil
		}
	}

	seen := make(map[string]bool, len(legacy)+len(child))
	var merged []string
	for _, obs := range append(legacy, child...) {
		obs = strings.TrimSpace(obs)
		if obs == "" || seen[obs] {
			continue
		}
		seen[obs] = true
		merged = append(merged, obs)
	}
	return merged
}

// AppendObservations adds new observations to an entity, skipping any that
// already exist in the merged view.
func (db *DB) AppendObservations(entityID string, observations []string) error {
	existing, err := db.GetEntityByID(entityID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("entity %s not found", entityID)
	}

	seen := make(map[string]bool, len(existing.Observations))
	for _, obs := range existing.Observations {
		seen[obs] = true
	}

	now := time.Now().UnixMilli()
	for _, obs := range observations {
		obs = strings.TrimSpace(obs)
		if obs == "" || seen[obs] {
			continue
		}
		seen[obs] = true
		if _, err := db.Exec(`
			INSERT INTO entity_observations (entity_id, content, created_at)
			VALUES (?, ?, ?)
		`, entityID, obs, now); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
	}
	return nil
}

// ListEntityNames returns all entity names in insertion order.
func (db *DB) ListEntityNames() ([]string, error) {
	rows, err := db.Query("SELECT name FROM entities ORDER BY created_at, name")
	if err != nil {
		return nil, fmt.Errorf("list entity names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan entity name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// TopEntities returns up to limit entities ordered by importance descending.
// Observations are merged per row.
func (db *DB) TopEntities(limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT id FROM entities ORDER BY importance DESC, created_at LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return db.entitiesByIDs(ids)
}

// EntitiesByNames returns entity rows (with merged observations) for the
// given names. Missing names are silently skipped.
func (db *DB) EntitiesByNames(names []string) ([]Entity, error) {
	var entities []Entity
	for _, name := range names {
		e, err := db.GetEntityByName(name)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entities = append(entities, *e)
		}
	}
	return entities, nil
}

func (db *DB) entitiesByIDs(ids []string) ([]Entity, error) {
	var entities []Entity
	for _, id := range ids {
		e, err := db.GetEntityByID(id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entities = append(entities, *e)
		}
	}
	return entities, nil
}

// RenameEntity updates an entity's name and/or type and rewrites every
// relation endpoint that references the old name, atomically. Empty newName
// or newType leaves that field unchanged.
func (db *DB) RenameEntity(currentName, newName, newType string) error {
	e, err := db.GetEntityByName(currentName)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("entity %q not found", currentName)
	}

	if newName == "" {
		newName = e.Name
	}
	if newType == "" {
		newType = e.Type
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		UPDATE entities SET name = ?, type = ?, updated_at = ? WHERE id = ?
	`, newName, newType, now, e.ID); err != nil {
		tx.Rollback()
		if isConstraintErr(err) {
			return fmt.Errorf("rename to %q: %w", newName, ErrConstraint)
		}
		return fmt.Errorf("rename entity: %w", err)
	}

	if newName != e.Name {
		if _, err := tx.Exec("UPDATE relations SET source = ? WHERE source = ?", newName, e.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("rewrite relation sources: %w", err)
		}
		if _, err := tx.Exec("UPDATE relations SET target = ? WHERE target = ?", newName, e.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("rewrite relation targets: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	return nil
}

// DeleteEntity removes an entity, its observations, every relation touching
// it, and its vector entry, atomically. Returns false if the name has no row.
func (db *DB) DeleteEntity(name string) (bool, error) {
	e, err := db.GetEntityByName(name)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete entity: %w", err)
	}

	steps := []struct {
		desc string
		sql  string
		args []any
	}{
		{"delete observations", "DELETE FROM entity_observations WHERE entity_id = ?", []any{e.ID}},
		{"delete relations", "DELETE FROM relations WHERE source = ? OR target = ?", []any{e.Name, e.Name}},
		{"delete vector", "DELETE FROM vectors WHERE key = ?", []any{EntityVectorKey(e.ID)}},
		{"delete entity", "DELETE FROM entities WHERE id = ?", []any{e.ID}},
	}
	for _, s := range steps {
		if _, err := tx.Exec(s.sql, s.args...); err != nil {
			tx.Rollback()
			return false, fmt.Errorf("%s: %w", s.desc, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete entity: %w", err)
	}
	return true, nil
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
