package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 8000, cfg.TokenBudget)
	assert.Equal(t, 60, cfg.WindowLines)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().TokenBudget, cfg.TokenBudget)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"tokenBudget: 4000\nwindowLines: 30\nlogLevel: debug\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.TokenBudget)
	assert.Equal(t, 30, cfg.WindowLines)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults
	assert.Equal(t, 20, cfg.Tier1Window)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokenBudget: 4000\n"), 0o644))
	t.Setenv("DIFFCONTEXT_TOKEN_BUDGET", "2000")
	t.Setenv("DIFFCONTEXT_EMBED_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.TokenBudget)
	assert.Equal(t, "sk-test", cfg.EmbedAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DIFFCONTEXT_WINDOW_OVERLAP", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/dc"
	assert.Equal(t, filepath.Join("/var/lib/dc", "chunks.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/dc", "vectors.idx"), cfg.VectorIndexPath())
}
