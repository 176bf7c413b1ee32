package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lazypower/recollect/internal/config"
	"github.com/lazypower/recollect/internal/store"
)

// backgroundWorkers bounds concurrent background embedding/extraction so a
// batch of inserts cannot saturate the embedding backend.
const backgroundWorkers = 4

// backgroundTimeout caps each background task (embed + extract per fact).
const backgroundTimeout = 120 * time.Second

// Engine orchestrates memory storage, hybrid recall, the knowledge graph,
// and the importance lifecycle.
type Engine struct {
	DB        *store.DB
	Embedder  Embedder  // nil = vector search unavailable
	Extractor Extractor // nil = extraction disabled
	Scoring   config.ScoringConfig
	Matcher   Matcher

	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}

	mu sync.Mutex // serializes graph mutations that span read-then-write
}

// New creates a new Engine.
func New(db *store.DB, scoring config.ScoringConfig) *Engine {
	return &Engine{
		DB:      db,
		Scoring: scoring,
		Matcher: NewMatcher(),
		sem:     make(chan struct{}, backgroundWorkers),
		stopCh:  make(chan struct{}),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// SetExtractor configures the entity extraction strategy.
func (e *Engine) SetExtractor(ex Extractor) {
	e.Extractor = ex
}

// Remember stores a text fact and returns its id. Embedding and entity
// extraction run in the background: the memory is keyword-searchable
// immediately and vector-searchable once the embedding write lands.
// Background failures are logged, never surfaced to the caller.
func (e *Engine) Remember(ctx context.Context, content string, tags []string) (string, error) {
	m, err := e.DB.CreateMemory(content, tags)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}

	e.background(func() {
		bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		e.embedMemory(bctx, m.ID, m.Content)
		e.extractFrom(bctx, m.Content)
	})

	return m.ID, nil
}

// Forget deletes a memory along with its vector-index and keyword-index
// entries. Orphaned index entries are a correctness bug, so all three go in
// one transaction.
func (e *Engine) Forget(ctx context.Context, id string) error {
	deleted, err := e.DB.DeleteMemory(id)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	if !deleted {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// background runs fn on a bounded worker slot. Fire-and-forget: callers never
// wait on it and failures inside fn must be logged by fn itself.
func (e *Engine) background(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case e.sem <- struct{}{}:
		case <-e.stopCh:
			return
		}
		defer func() { <-e.sem }()
		fn()
	}()
}

func (e *Engine) embedMemory(ctx context.Context, id, content string) {
	if e.Embedder == nil {
		return
	}
	vec, err := e.Embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("embed: memory %s: %v", id, err)
		return
	}
	if err := e.DB.SaveVector(store.MemoryVectorKey(id), vec, e.Embedder.Model()); err != nil {
		log.Printf("embed: save vector for %s: %v", id, err)
	}
}

func (e *Engine) embedEntity(ctx context.Context, id, name, typ string) {
	if e.Embedder == nil {
		return
	}
	vec, err := e.Embedder.Embed(ctx, name+" "+typ)
	if err != nil {
		log.Printf("embed: entity %s: %v", name, err)
		return
	}
	if err := e.DB.SaveVector(store.EntityVectorKey(id), vec, e.Embedder.Model()); err != nil {
		log.Printf("embed: save vector for entity %s: %v", name, err)
	}
}

// extractFrom runs the configured extraction strategy over a stored fact and
// feeds candidates through the graph's dedup. Best-effort: errors are logged
// and the candidates dropped, never retried.
func (e *Engine) extractFrom(ctx context.Context, content string) {
	if e.Extractor == nil {
		return
	}
	ex, err := e.Extractor.Extract(ctx, content)
	if err != nil {
		log.Printf("extraction: %v", err)
		return
	}

	for _, c := range ex.Entities {
		if _, err := e.CreateEntity(ctx, c.Name, c.Type, nil); err != nil {
			log.Printf("extraction: entity %q: %v", c.Name, err)
		}
	}
	for _, r := range ex.Relations {
		if err := e.CreateRelation(ctx, r.Source, r.Target, r.Relation); err != nil {
			log.Printf("extraction: relation %s-%s->%s: %v", r.Source, r.Relation, r.Target, err)
		}
	}
}

// EmbedMissing embeds every memory and entity whose vector is absent or was
// produced by a different model. Returns how many records were embedded.
func (e *Engine) EmbedMissing(ctx context.Context) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	embedded := 0

	memories, err := e.DB.ListMemories()
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}
	for _, m := range memories {
		key := store.MemoryVectorKey(m.ID)
		if fresh, err := e.vectorFresh(key); err != nil || fresh {
			continue
		}
		vec, err := e.Embedder.Embed(ctx, m.Content)
		if err != nil {
			log.Printf("embed missing: memory %s: %v", m.ID, err)
			continue
		}
		if err := e.DB.SaveVector(key, vec, e.Embedder.Model()); err != nil {
			log.Printf("embed missing: save %s: %v", m.ID, err)
			continue
		}
		embedded++
	}

	names, err := e.DB.ListEntityNames()
	if err != nil {
		return embedded, fmt.Errorf("list entities: %w", err)
	}
	for _, name := range names {
		ent, err := e.DB.GetEntityByName(name)
		if err != nil || ent == nil {
			continue
		}
		key := store.EntityVectorKey(ent.ID)
		if fresh, err := e.vectorFresh(key); err != nil || fresh {
			continue
		}
		vec, err := e.Embedder.Embed(ctx, ent.Name+" "+ent.Type)
		if err != nil {
			log.Printf("embed missing: entity %s: %v", ent.Name, err)
			continue
		}
		if err := e.DB.SaveVector(key, vec, e.Embedder.Model()); err != nil {
			log.Printf("embed missing: save entity %s: %v", ent.Name, err)
			continue
		}
		embedded++
	}

	return embedded, nil
}

func (e *Engine) vectorFresh(key string) (bool, error) {
	existing, err := e.DB.GetVector(key)
	if err != nil {
		log.Printf("embed missing: get vector %s: %v", key, err)
		return false, err
	}
	return existing != nil && existing.Model == e.Embedder.Model(), nil
}

// Stop shuts down background goroutines and waits for in-flight work.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}
