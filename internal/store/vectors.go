package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Vector keys namespace the shared vectors table by record kind.
const (
	memoryKeyPrefix = "mem:"
	entityKeyPrefix = "ent:"
)

// MemoryVectorKey returns the vectors-table key for a memory id.
func MemoryVectorKey(id string) string { return memoryKeyPrefix + id }

// EntityVectorKey returns the vectors-table key for an entity id.
func EntityVectorKey(id string) string { return entityKeyPrefix + id }

// MemoryIDFromKey extracts the memory id from a vector key, or "" if the key
// belongs to another kind.
func MemoryIDFromKey(key string) string {
	if strings.HasPrefix(key, memoryKeyPrefix) {
		return key[len(memoryKeyPrefix):]
	}
	return ""
}

// VectorRecord holds an embedding for a memory or entity.
type VectorRecord struct {
	Key        string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// VectorHit is a nearest-neighbor result: a key with its cosine distance to
// the query (0 = identical direction).
type VectorHit struct {
	Key      string
	Distance float64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a key.
func (db *DB) SaveVector(key string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.Exec(`
		INSERT INTO vectors (key, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, key, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for a key, or nil if not found.
func (db *DB) GetVector(key string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRow(`
		SELECT key, embedding, model, dimensions, created_at
		FROM vectors WHERE key = ?
	`, key).Scan(&v.Key, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// AllVectors returns all stored vector records with the given key prefix.
func (db *DB) AllVectors(prefix string) ([]VectorRecord, error) {
	rows, err := db.Query(`
		SELECT key, embedding, model, dimensions, created_at
		FROM vectors WHERE key LIKE ?
	`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("all vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.Key, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// DeleteVector removes the embedding for a key.
func (db *DB) DeleteVector(key string) error {
	_, err := db.Exec("DELETE FROM vectors WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// NearestMemories returns up to k memory-vector hits ordered by ascending
// cosine distance from the query. The filter, when non-nil, restricts
// candidates by memory id. A stored vector whose dimension differs from the
// query's is a hard error: it means the store holds embeddings from an
// incompatible model.
func (db *DB) NearestMemories(query []float64, k int, filter func(memoryID string) bool) ([]VectorHit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	vectors, err := db.AllVectors(memoryKeyPrefix)
	if err != nil {
		return nil, err
	}

	var hits []VectorHit
	for _, v := range vectors {
		if len(v.Embedding) != len(query) {
			return nil, fmt.Errorf("vector dimension mismatch: stored %d, query %d (key %s)",
				len(v.Embedding), len(query), v.Key)
		}
		id := MemoryIDFromKey(v.Key)
		if filter != nil && !filter(id) {
			continue
		}
		hits = append(hits, VectorHit{
			Key:      v.Key,
			Distance: 1.0 - cosineSimilarity(query, v.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Works on unnormalized vectors; returns 0 for mismatched or empty inputs.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
