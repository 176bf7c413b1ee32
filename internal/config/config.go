package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all recollect configuration. Defaults come from Default();
// RECOLLECT_* environment variables overlay them via Load().
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Scoring    ScoringConfig
	Embedding  EmbeddingConfig
	Extraction ExtractionConfig
}

type ServerConfig struct {
	Bind string `env:"RECOLLECT_BIND"`
	Port int    `env:"RECOLLECT_PORT"`
}

type DatabaseConfig struct {
	Path string `env:"RECOLLECT_DB_PATH"` // empty = ~/.recollect/recollect.db
}

// ScoringConfig holds the retrieval ranking and lifecycle knobs.
type ScoringConfig struct {
	HalfLifeWeeks       float64 `env:"RECOLLECT_HALF_LIFE_WEEKS"`
	ConsolidationFactor float64 `env:"RECOLLECT_CONSOLIDATION_FACTOR"`
	SemanticWeight      float64 `env:"RECOLLECT_SEMANTIC_WEIGHT"`
	TagMatchBoost       float64 `env:"RECOLLECT_TAG_MATCH_BOOST"`
	BaseDecayRate       float64 `env:"RECOLLECT_BASE_DECAY_RATE"` // maintenance decay per month
}

type EmbeddingConfig struct {
	Provider   string `env:"RECOLLECT_EMBED_PROVIDER"` // "ollama", "tfidf", "none"
	OllamaURL  string `env:"RECOLLECT_OLLAMA_URL"`
	Model      string `env:"RECOLLECT_EMBED_MODEL"`
	Dimensions int    `env:"RECOLLECT_EMBED_DIMENSIONS"`
}

type ExtractionConfig struct {
	Strategy     string `env:"RECOLLECT_EXTRACT_STRATEGY"` // "passive", "llm", "off"
	Provider     string `env:"RECOLLECT_LLM_PROVIDER"`     // "anthropic", "ollama"
	Model        string `env:"RECOLLECT_LLM_MODEL"`
	OllamaURL    string `env:"RECOLLECT_LLM_OLLAMA_URL"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38888,
		},
		Scoring: ScoringConfig{
			HalfLifeWeeks:       4,
			ConsolidationFactor: 1.0,
			SemanticWeight:      0.7,
			TagMatchBoost:       0.15,
			BaseDecayRate:       0.05,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Extraction: ExtractionConfig{
			Strategy:  "passive",
			Provider:  "ollama",
			Model:     "llama3.2",
			OllamaURL: "http://localhost:11434",
		},
	}
}

// Load returns the defaults overlaid with environment variables.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
