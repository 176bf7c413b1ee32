package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory is a stored text fact with decay/access metadata.
type Memory struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags"`
	Importance   float64  `json:"importance"`
	CreatedAt    int64    `json:"created_at"`
	LastAccessed int64    `json:"last_accessed"`
	AccessCount  int      `json:"access_count"`
}

// TimeRange restricts queries to memories created within [From, To].
// A zero bound is unbounded. Times are unix milliseconds.
type TimeRange struct {
	From int64
	To   int64
}

// Contains reports whether a created_at timestamp falls inside the range.
// A nil range contains everything.
func (tr *TimeRange) Contains(ts int64) bool {
	if tr == nil {
		return true
	}
	if tr.From > 0 && ts < tr.From {
		return false
	}
	if tr.To > 0 && ts > tr.To {
		return false
	}
	return true
}

// rangeClause appends created_at bounds to a WHERE clause.
func (tr *TimeRange) rangeClause(args []any) (string, []any) {
	if tr == nil {
		return "", args
	}
	clause := ""
	if tr.From > 0 {
		clause += " AND m.created_at >= ?"
		args = append(args, tr.From)
	}
	if tr.To > 0 {
		clause += " AND m.created_at <= ?"
		args = append(args, tr.To)
	}
	return clause, args
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// CreateMemory inserts a new memory. last_accessed defaults to creation time.
func (db *DB) CreateMemory(content string, tags []string) (*Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty content")
	}

	now := time.Now().UnixMilli()
	m := &Memory{
		ID:           uuid.NewString(),
		Content:      content,
		Tags:         tags,
		Importance:   0.5,
		CreatedAt:    now,
		LastAccessed: now,
	}

	_, err := db.Exec(`
		INSERT INTO memories (id, content, tags, importance, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, m.ID, m.Content, encodeTags(m.Tags), m.Importance, m.CreatedAt, m.LastAccessed)
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	return m, nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id string) (*Memory, error) {
	row := db.QueryRow(`
		SELECT id, content, tags, importance, created_at, last_accessed, access_count
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// GetMemoriesByIDs returns memories for the given ids, in no particular order.
func (db *DB) GetMemoriesByIDs(ids []string) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}

	rows, err := db.Query(fmt.Sprintf(`
		SELECT id, content, tags, importance, created_at, last_accessed, access_count
		FROM memories WHERE id IN (%s)
	`, strings.Join(ph, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemories returns every stored memory, newest first.
func (db *DB) ListMemories() ([]Memory, error) {
	rows, err := db.Query(`
		SELECT id, content, tags, importance, created_at, last_accessed, access_count
		FROM memories ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteMemory removes a memory, its vector entry, and (via trigger) its
// keyword-index entry in one transaction. Returns false if the id has no row.
func (db *DB) DeleteMemory(id string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM vectors WHERE key = ?", MemoryVectorKey(id)); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("delete memory vector: %w", err)
	}

	result, err := tx.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}

// KeywordHit is a keyword-index result: a memory with its native relevance rank.
type KeywordHit struct {
	Memory Memory
	Rank   float64
}

// SearchMemoriesFTS runs an FTS5 MATCH query, best rank first, restricted to
// the optional time range. The match expression is built by the caller.
func (db *DB) SearchMemoriesFTS(match string, limit int, tr *TimeRange) ([]KeywordHit, error) {
	if !db.ftsEnabled {
		return nil, fmt.Errorf("fts5 keyword index unavailable")
	}
	if limit <= 0 {
		limit = 10
	}

	args := []any{match}
	clause, args := tr.rangeClause(args)
	args = append(args, limit)

	rows, err := db.Query(fmt.Sprintf(`
		SELECT m.id, m.content, m.tags, m.importance, m.created_at, m.last_accessed, m.access_count,
			bm25(memories_fts) AS rank
		FROM memories_fts f
		JOIN memories m ON m.id = f.mem_id
		WHERE memories_fts MATCH ?%s
		ORDER BY rank
		LIMIT ?
	`, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var m Memory
		var tags string
		var rank float64
		if err := rows.Scan(&m.ID, &m.Content, &tags, &m.Importance,
			&m.CreatedAt, &m.LastAccessed, &m.AccessCount, &rank); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		m.Tags = decodeTags(tags)
		hits = append(hits, KeywordHit{Memory: m, Rank: rank})
	}
	return hits, rows.Err()
}

// SearchMemoriesLike returns memories whose content contains the literal
// substring, case-insensitive, newest first.
func (db *DB) SearchMemoriesLike(substr string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(substr) + "%"
	rows, err := db.Query(`
		SELECT id, content, tags, importance, created_at, last_accessed, access_count
		FROM memories WHERE lower(content) LIKE ?
		ORDER BY created_at DESC LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// RecallFeedback applies the access-stat mutation for a batch of recalled
// memories in one transaction: last_accessed = now, access_count += 1, and
// importance overwritten via grow(new access_count). A crash mid-batch must
// not leave a memory with an updated count but stale importance.
func (db *DB) RecallFeedback(ids []string, now int64, grow func(accessCount int) float64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin feedback: %w", err)
	}

	for _, id := range ids {
		var count int
		if err := tx.QueryRow("SELECT access_count FROM memories WHERE id = ?", id).Scan(&count); err != nil {
			tx.Rollback()
			return fmt.Errorf("feedback read %s: %w", id, err)
		}
		count++
		if _, err := tx.Exec(`
			UPDATE memories SET last_accessed = ?, access_count = ?, importance = ?
			WHERE id = ?
		`, now, count, grow(count), id); err != nil {
			tx.Rollback()
			return fmt.Errorf("feedback update %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feedback: %w", err)
	}
	return nil
}

// SetImportanceBatch persists new importance values in one transaction.
// Used by periodic maintenance.
func (db *DB) SetImportanceBatch(updates map[string]float64) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin importance batch: %w", err)
	}
	for id, imp := range updates {
		if _, err := tx.Exec("UPDATE memories SET importance = ? WHERE id = ?", imp, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("update importance %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit importance batch: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var tags string
	if err := row.Scan(&m.ID, &m.Content, &tags, &m.Importance,
		&m.CreatedAt, &m.LastAccessed, &m.AccessCount); err != nil {
		return nil, err
	}
	m.Tags = decodeTags(tags)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}
