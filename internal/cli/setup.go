package cli

import (
	"fmt"
	"os"

	"github.com/lazypower/recollect/internal/config"
	"github.com/lazypower/recollect/internal/engine"
	"github.com/lazypower/recollect/internal/store"
)

// openEngine loads config, opens the database, and wires the engine with
// whatever capabilities are reachable. Missing capabilities degrade: no
// embedder means keyword-only recall, no extractor means no graph growth.
func openEngine() (config.Config, *store.DB, *engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return cfg, nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("open database: %w", err)
	}

	eng := engine.New(db, cfg.Scoring)

	switch cfg.Embedding.Provider {
	case "none":
	case "tfidf":
		if emb, err := engine.NewTFIDFEmbedder(db, 512); err != nil {
			fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", err)
		} else {
			eng.SetEmbedder(emb)
		}
	default: // "ollama"
		if engine.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
			eng.SetEmbedder(engine.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions))
		} else if emb, err := engine.NewTFIDFEmbedder(db, 512); err != nil {
			fmt.Fprintf(os.Stderr, "warning: no embedder available, vector search disabled: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "  embedder: tfidf (ollama unreachable)")
			eng.SetEmbedder(emb)
		}
	}

	extractor, err := engine.NewExtractor(cfg.Extraction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: extraction disabled: %v\n", err)
	} else if extractor != nil {
		eng.SetExtractor(extractor)
	}

	return cfg, db, eng, nil
}
