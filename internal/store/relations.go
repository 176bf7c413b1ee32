package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Relation is a directed, typed edge between two entities by name.
// Uniqueness is the (source, target, relation) triple.
type Relation struct {
	ID        int64  `json:"-"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Relation  string `json:"relation"`
	CreatedAt int64  `json:"created_at"`
}

// CreateRelation inserts a relation. Re-creating an existing triple is a
// no-op success; created reports whether a new row was written.
func (db *DB) CreateRelation(source, target, relation string) (created bool, err error) {
	if source == "" || target == "" || relation == "" {
		return false, fmt.Errorf("relation requires source, target, and predicate")
	}

	result, err := db.Exec(`
		INSERT OR IGNORE INTO relations (source, target, relation, created_at)
		VALUES (?, ?, ?, ?)
	`, source, target, relation, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("create relation: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteRelation removes a relation triple. Returns false if no row matched.
func (db *DB) DeleteRelation(source, target, relation string) (bool, error) {
	result, err := db.Exec(`
		DELETE FROM relations WHERE source = ? AND target = ? AND relation = ?
	`, source, target, relation)
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// RelationsTouching returns every relation where any of the given names is an
// endpoint (either direction).
func (db *DB) RelationsTouching(names []string) ([]Relation, error) {
	if len(names) == 0 {
		return nil, nil
	}

	ph := placeholders(len(names))
	args := make([]any, 0, len(names)*2)
	for _, n := range names {
		args = append(args, n)
	}
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := db.Query(fmt.Sprintf(`
		SELECT id, source, target, relation, created_at
		FROM relations WHERE source IN (%s) OR target IN (%s)
		ORDER BY id
	`, ph, ph), args...)
	if err != nil {
		return nil, fmt.Errorf("relations touching: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// RelationsAmong returns every relation whose source AND target are both in
// the given name set.
func (db *DB) RelationsAmong(names []string) ([]Relation, error) {
	if len(names) == 0 {
		return nil, nil
	}

	ph := placeholders(len(names))
	args := make([]any, 0, len(names)*2)
	for _, n := range names {
		args = append(args, n)
	}
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := db.Query(fmt.Sprintf(`
		SELECT id, source, target, relation, created_at
		FROM relations WHERE source IN (%s) AND target IN (%s)
		ORDER BY id
	`, ph, ph), args...)
	if err != nil {
		return nil, fmt.Errorf("relations among: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanRelations(rows *sql.Rows) ([]Relation, error) {
	var relations []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.Relation, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
