// Package config holds all mathmotion configuration.
// Configuration is an explicit struct passed into components at construction;
// nothing in the core packages reads the environment directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration tree.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Guard     GuardConfig     `yaml:"guard"`
	Execution ExecutionConfig `yaml:"execution"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig configures the Gemini text client.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	GeneratorModel string `yaml:"generator_model"` // Script generation and repair
	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"` // Transport-level retries per call
}

// TimeoutDuration parses the configured timeout, defaulting to 2 minutes.
func (c LLMConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 2*time.Minute)
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai" or "ollama"

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// RetrievalConfig configures the passage index.
type RetrievalConfig struct {
	IndexPath string `yaml:"index_path"` // SQLite database holding the corpus
	TopK      int    `yaml:"top_k"`      // Passages per retrieval
}

// GuardConfig configures the static safety guard.
type GuardConfig struct {
	// AllowedModules are importable modules beyond the hard denylist.
	AllowedModules []string `yaml:"allowed_modules"`
}

// ExecutionConfig configures the sandbox runner.
type ExecutionConfig struct {
	ManimBinary string `yaml:"manim_binary"`
	Quality     string `yaml:"quality"` // l/m/h/k, mapped to -ql/-qm/-qh/-qk
	SceneName   string `yaml:"scene_name"`
	OutputDir   string `yaml:"output_dir"`  // Where finished artifacts land
	ScratchDir  string `yaml:"scratch_dir"` // Base for per-attempt work dirs
	Timeout     string `yaml:"timeout"`     // Wall-clock limit per attempt
}

// TimeoutDuration parses the configured timeout, defaulting to 5 minutes.
func (c ExecutionConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 5*time.Minute)
}

// AgentConfig configures the generation/repair loop.
type AgentConfig struct {
	// MaxRepairs is an inclusive bound on repair rounds. MaxRepairs=5 allows
	// up to 6 generation calls: one initial plus five repairs.
	MaxRepairs int `yaml:"max_repairs"`
	// RetrieveOnRepair controls whether each repair round re-queries the
	// passage index with the latest diagnostics.
	RetrieveOnRepair bool `yaml:"retrieve_on_repair"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mathmotion",
		Version: "0.1.0",
		LLM: LLMConfig{
			GeneratorModel: "gemini-2.5-pro",
			Timeout:        "2m",
			MaxRetries:     2,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_QUERY",
		},
		Retrieval: RetrievalConfig{
			IndexPath: filepath.Join(".mathmotion", "manim_docs.db"),
			TopK:      4,
		},
		Guard: GuardConfig{
			AllowedModules: []string{"manim", "numpy", "math", "random", "itertools", "functools", "typing"},
		},
		Execution: ExecutionConfig{
			ManimBinary: "manim",
			Quality:     "l",
			SceneName:   "GeneratedScene",
			OutputDir:   filepath.Join(".mathmotion", "videos"),
			ScratchDir:  os.TempDir(),
			Timeout:     "5m",
		},
		Agent: AgentConfig{
			MaxRepairs:       5,
			RetrieveOnRepair: true,
		},
		Logging: LoggingConfig{
			Dir:   filepath.Join(".mathmotion", "logs"),
			Debug: false,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks invariants that would otherwise surface mid-session.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.Agent.MaxRepairs < 0 {
		return fmt.Errorf("agent.max_repairs must be >= 0, got %d", c.Agent.MaxRepairs)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0, got %d", c.Retrieval.TopK)
	}
	switch c.Execution.Quality {
	case "l", "m", "h", "k":
	default:
		return fmt.Errorf("execution.quality must be one of l/m/h/k, got %q", c.Execution.Quality)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if model := os.Getenv("MATHMOTION_GENERATOR_MODEL"); model != "" {
		c.LLM.GeneratorModel = model
	}
	if bin := os.Getenv("MATHMOTION_MANIM_BINARY"); bin != "" {
		c.Execution.ManimBinary = bin
	}
	if path := os.Getenv("MATHMOTION_INDEX"); path != "" {
		c.Retrieval.IndexPath = path
	}
	if os.Getenv("MATHMOTION_DEBUG") == "1" {
		c.Logging.Debug = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
