package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Workspace     string              `json:"workspace" env:"STRATAMEM_WORKSPACE"`
	Embedding     EmbeddingConfig     `json:"embedding"`
	Tiers         TiersConfig         `json:"tiers"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Search        SearchConfig        `json:"search"`
	mu            sync.RWMutex
}

type EmbeddingConfig struct {
	Dimensions int    `json:"dimensions" env:"STRATAMEM_EMBEDDING_DIMENSIONS"`
	Metric     string `json:"metric" env:"STRATAMEM_EMBEDDING_METRIC"` // "cosine" or "euclidean"
}

type TiersConfig struct {
	VectorCapacity  int    `json:"vector_capacity" env:"STRATAMEM_TIERS_VECTOR_CAPACITY"`
	WorkingCapacity int    `json:"working_capacity" env:"STRATAMEM_TIERS_WORKING_CAPACITY"`
	EpisodicBackend string `json:"episodic_backend" env:"STRATAMEM_TIERS_EPISODIC_BACKEND"` // "memory" or "sqlite"
}

type ConsolidationConfig struct {
	ImportanceThreshold float64 `json:"importance_threshold" env:"STRATAMEM_CONSOLIDATION_IMPORTANCE_THRESHOLD"`
	DecayFactor         float64 `json:"decay_factor" env:"STRATAMEM_CONSOLIDATION_DECAY_FACTOR"`
	RecentEventLimit    int     `json:"recent_event_limit" env:"STRATAMEM_CONSOLIDATION_RECENT_EVENT_LIMIT"`
	RetryMaxAttempts    int     `json:"retry_max_attempts" env:"STRATAMEM_CONSOLIDATION_RETRY_MAX_ATTEMPTS"`
	RetryBaseDelayMS    int     `json:"retry_base_delay_ms" env:"STRATAMEM_CONSOLIDATION_RETRY_BASE_DELAY_MS"`
}

type SearchConfig struct {
	DefaultK        int `json:"default_k" env:"STRATAMEM_SEARCH_DEFAULT_K"`
	CacheSize       int `json:"cache_size" env:"STRATAMEM_SEARCH_CACHE_SIZE"`
	CacheTTLSeconds int `json:"cache_ttl_seconds" env:"STRATAMEM_SEARCH_CACHE_TTL_SECONDS"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.stratamem",
		Embedding: EmbeddingConfig{
			Dimensions: 128,
			Metric:     "cosine",
		},
		Tiers: TiersConfig{
			VectorCapacity:  10000,
			WorkingCapacity: 64,
			EpisodicBackend: "sqlite",
		},
		Consolidation: ConsolidationConfig{
			ImportanceThreshold: 0.6,
			DecayFactor:         0.9,
			RecentEventLimit:    64,
			RetryMaxAttempts:    3,
			RetryBaseDelayMS:    50,
		},
		Search: SearchConfig{
			DefaultK:        8,
			CacheSize:       128,
			CacheTTLSeconds: 20,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Workspace)
}

// EpisodicDBPath is where the sqlite backend keeps the event log.
func (c *Config) EpisodicDBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "episodic.db")
}

func (c *Config) validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("embedding.metric must be cosine or euclidean, got %q", c.Embedding.Metric)
	}
	switch c.Tiers.EpisodicBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("tiers.episodic_backend must be memory or sqlite, got %q", c.Tiers.EpisodicBackend)
	}
	if c.Tiers.VectorCapacity <= 0 || c.Tiers.WorkingCapacity <= 0 {
		return fmt.Errorf("tier capacities must be positive")
	}
	if t := c.Consolidation.ImportanceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("consolidation.importance_threshold must be in [0,1], got %v", t)
	}
	if d := c.Consolidation.DecayFactor; d <= 0 || d > 1 {
		return fmt.Errorf("consolidation.decay_factor must be in (0,1], got %v", d)
	}
	return nil
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
