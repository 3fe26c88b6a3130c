package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 128, cfg.Embedding.Dimensions)
	assert.Equal(t, "cosine", cfg.Embedding.Metric)
	assert.Equal(t, "sqlite", cfg.Tiers.EpisodicBackend)
	assert.Equal(t, 0.6, cfg.Consolidation.ImportanceThreshold)
	assert.Equal(t, 0.9, cfg.Consolidation.DecayFactor)
	assert.NotEmpty(t, cfg.Workspace)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Embedding.Dimensions, cfg.Embedding.Dimensions)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"embedding": {"dimensions": 32, "metric": "euclidean"}, "tiers": {"episodic_backend": "memory"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Embedding.Dimensions)
	assert.Equal(t, "euclidean", cfg.Embedding.Metric)
	assert.Equal(t, "memory", cfg.Tiers.EpisodicBackend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.6, cfg.Consolidation.ImportanceThreshold)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"embedding": {"dimensions": 32}}`), 0600))
	t.Setenv("STRATAMEM_EMBEDDING_DIMENSIONS", "64")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	testcases := []struct {
		name string
		body string
	}{
		{"bad-metric", `{"embedding": {"metric": "manhattan"}}`},
		{"bad-backend", `{"tiers": {"episodic_backend": "postgres"}}`},
		{"bad-threshold", `{"consolidation": {"importance_threshold": 1.5}}`},
		{"bad-decay", `{"consolidation": {"decay_factor": 0}}`},
		{"bad-dimensions", `{"embedding": {"dimensions": -1}}`},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0600))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Embedding.Dimensions = 48

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 48, loaded.Embedding.Dimensions)
}

func TestEpisodicDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/stratamem-test"
	assert.Equal(t, filepath.Join("/tmp/stratamem-test", "state", "episodic.db"), cfg.EpisodicDBPath())
}
