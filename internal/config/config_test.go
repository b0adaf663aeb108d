package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.GeneratorModel)
	assert.Equal(t, 5, cfg.Agent.MaxRepairs)
	assert.Equal(t, "l", cfg.Execution.Quality)
	assert.Equal(t, "GeneratedScene", cfg.Execution.SceneName)
	assert.Contains(t, cfg.Guard.AllowedModules, "manim")
	assert.Equal(t, 5*time.Minute, cfg.Execution.TimeoutDuration())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LLM.GeneratorModel, cfg.LLM.GeneratorModel)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
llm:
  generator_model: gemini-2.5-flash
agent:
  max_repairs: 2
execution:
  quality: m
  timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.GeneratorModel)
	assert.Equal(t, 2, cfg.Agent.MaxRepairs)
	assert.Equal(t, 30*time.Second, cfg.Execution.TimeoutDuration())
	// Untouched sections keep defaults.
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("MATHMOTION_MANIM_BINARY", "/opt/manim/bin/manim")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "test-key", cfg.Embedding.GenAIAPIKey)
	assert.Equal(t, "/opt/manim/bin/manim", cfg.Execution.ManimBinary)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Execution.Quality = "ultra"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.APIKey = "k"
	cfg.Agent.MaxRepairs = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	assert.Error(t, cfg.Validate(), "missing API key should fail validation")
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("garbage", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, 10*time.Second, parseDuration("10s", time.Minute))
}
