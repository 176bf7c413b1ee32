package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/lazypower/recollect/internal/store"
)

// maxGraphDepth bounds reachability traversal.
const maxGraphDepth = 3

// centerMemoryLimit caps the memories attached to a centered graph view.
const centerMemoryLimit = 5

// GraphView is the result of a graph read: entity rows, the relations among
// them, and (for centered reads) memories mentioning the center.
type GraphView struct {
	Entities  []store.Entity   `json:"entities"`
	Relations []store.Relation `json:"relations"`
	Memories  []store.Memory   `json:"memories,omitempty"`
}

// CreateEntity creates an entity, deduplicating against existing names with
// the fuzzy matcher: a near-duplicate name appends its observations to the
// existing entity instead of inserting a new row. Returns the id of the row
// the observations ended up on.
func (e *Engine) CreateEntity(ctx context.Context, name, typ string, observations []string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createEntityLocked(ctx, name, typ, observations)
}

func (e *Engine) createEntityLocked(ctx context.Context, name, typ string, observations []string) (string, error) {
	names, err := e.DB.ListEntityNames()
	if err != nil {
		return "", fmt.Errorf("create entity: %w", err)
	}

	if existing, ok := e.Matcher.Match(name, names); ok {
		ent, err := e.DB.GetEntityByName(existing)
		if err != nil {
			return "", fmt.Errorf("create entity: %w", err)
		}
		if ent == nil {
			return "", fmt.Errorf("create entity: matched name %q vanished", existing)
		}
		if len(observations) > 0 {
			if err := e.DB.AppendObservations(ent.ID, observations); err != nil {
				return "", fmt.Errorf("create entity: %w", err)
			}
		}
		return ent.ID, nil
	}

	ent, err := e.DB.CreateEntity(name, typ, observations)
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			return "", fmt.Errorf("entity %q: %w", name, ErrIntegrityViolation)
		}
		return "", err
	}

	// Vector-search eligibility lands asynchronously, like memory embeddings.
	e.background(func() {
		bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		e.embedEntity(bctx, ent.ID, ent.Name, ent.Type)
	})

	return ent.ID, nil
}

// UpdateEntity renames and/or retypes an entity. The row update and the
// rewrite of every relation endpoint commit atomically; the re-embed runs in
// the background afterwards.
func (e *Engine) UpdateEntity(ctx context.Context, currentName, newName, newType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.resolveName(currentName)
	if err != nil {
		return err
	}

	if err := e.DB.RenameEntity(resolved, newName, newType); err != nil {
		if errors.Is(err, store.ErrConstraint) {
			return fmt.Errorf("rename %q to %q: %w", resolved, newName, ErrIntegrityViolation)
		}
		return fmt.Errorf("update entity: %w", err)
	}

	finalName := newName
	if finalName == "" {
		finalName = resolved
	}
	ent, err := e.DB.GetEntityByName(finalName)
	if err != nil || ent == nil {
		log.Printf("graph: re-read after rename %q: %v", finalName, err)
		return nil
	}
	if finalName != resolved || newType != "" {
		e.background(func() {
			bctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
			defer cancel()
			e.embedEntity(bctx, ent.ID, ent.Name, ent.Type)
		})
	}
	return nil
}

// DeleteEntity removes an entity, its observations, every relation touching
// it, and its vector entry atomically.
func (e *Engine) DeleteEntity(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.resolveName(name)
	if err != nil {
		return err
	}

	deleted, err := e.DB.DeleteEntity(resolved)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if !deleted {
		return fmt.Errorf("entity %q: %w", resolved, ErrNotFound)
	}
	return nil
}

// CreateRelation records a directed typed edge. Both endpoints must exist by
// exact name; missing ones are auto-created as stub entities of type
// "Unknown" (intentional permissiveness, not an error path). Re-creating an
// existing triple is a no-op success.
func (e *Engine) CreateRelation(ctx context.Context, source, target, relation string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range []string{source, target} {
		ent, err := e.DB.GetEntityByName(name)
		if err != nil {
			return fmt.Errorf("create relation: %w", err)
		}
		if ent == nil {
			if _, err := e.DB.CreateEntity(name, "Unknown", nil); err != nil {
				return fmt.Errorf("create relation: stub entity %q: %w", name, err)
			}
		}
	}

	if _, err := e.DB.CreateRelation(source, target, relation); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	return nil
}

// DeleteRelation removes a relation triple.
func (e *Engine) DeleteRelation(ctx context.Context, source, target, relation string) error {
	deleted, err := e.DB.DeleteRelation(source, target, relation)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	if !deleted {
		return fmt.Errorf("relation %s-%s->%s: %w", source, relation, target, ErrNotFound)
	}
	return nil
}

// ReadGraph returns a bounded subgraph. Without a center it is an overview:
// the top entities by importance and the relations among them. With a center
// it is the set of entities reachable within depth hops (relations treated
// as undirected for traversal), every relation between two reachable
// entities (lateral edges included, not just the traversal tree), and up to
// five memories mentioning the center.
func (e *Engine) ReadGraph(ctx context.Context, center string, depth int) (*GraphView, error) {
	if depth <= 0 {
		depth = 2
	}
	if depth > maxGraphDepth {
		depth = maxGraphDepth
	}

	if center == "" {
		return e.graphOverview()
	}

	resolved, err := e.resolveName(center)
	if err != nil {
		return nil, err
	}

	reachable := e.reachableFrom(resolved, depth)

	entities, err := e.DB.EntitiesByNames(reachable)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	relations, err := e.DB.RelationsAmong(reachable)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}

	return &GraphView{
		Entities:  entities,
		Relations: relations,
		Memories:  e.centerMemories(resolved),
	}, nil
}

func (e *Engine) graphOverview() (*GraphView, error) {
	entities, err := e.DB.TopEntities(10)
	if err != nil {
		return nil, fmt.Errorf("graph overview: %w", err)
	}
	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = ent.Name
	}
	relations, err := e.DB.RelationsAmong(names)
	if err != nil {
		return nil, fmt.Errorf("graph overview: %w", err)
	}
	return &GraphView{Entities: entities, Relations: relations}, nil
}

// reachableFrom computes the names reachable from center within depth hops by
// breadth-first expansion over relations in either direction.
func (e *Engine) reachableFrom(center string, depth int) []string {
	reachable := map[string]bool{center: true}
	order := []string{center}
	frontier := []string{center}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		relations, err := e.DB.RelationsTouching(frontier)
		if err != nil {
			log.Printf("graph: expand hop %d: %v", hop+1, err)
			break
		}

		var next []string
		for _, r := range relations {
			for _, name := range []string{r.Source, r.Target} {
				if !reachable[name] {
					reachable[name] = true
					order = append(order, name)
					next = append(next, name)
				}
			}
		}
		frontier = next
	}
	return order
}

// centerMemories finds up to five memories whose text mentions the center
// entity: keyword search first, literal substring match as fallback.
func (e *Engine) centerMemories(center string) []store.Memory {
	if match := buildMatchQuery(center); match != "" {
		hits, err := e.DB.SearchMemoriesFTS(match, centerMemoryLimit, nil)
		if err == nil && len(hits) > 0 {
			memories := make([]store.Memory, len(hits))
			for i, h := range hits {
				memories[i] = h.Memory
			}
			return memories
		}
		if err != nil {
			log.Printf("graph: center memory search: %v", err)
		}
	}

	memories, err := e.DB.SearchMemoriesLike(center, centerMemoryLimit)
	if err != nil {
		log.Printf("graph: center memory substring search: %v", err)
		return nil
	}
	return memories
}

// resolveName maps a caller-supplied name to an existing entity name: exact
// match first, then the same fuzzy matcher used at creation. Multiple equally
// close names surface as an AmbiguousMatchError.
func (e *Engine) resolveName(name string) (string, error) {
	names, err := e.DB.ListEntityNames()
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", name, err)
	}
	resolved, err := e.Matcher.Resolve(name, names)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		return "", err
	}
	return resolved, nil
}
