// Package config manages the mnemex configuration file
// (~/.config/mnemex/config.toml) and the data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all tunables for one memory instance.
type Config struct {
	Buffer    BufferConfig    `toml:"buffer"`
	Index     IndexConfig     `toml:"index"`
	Hierarchy HierarchyConfig `toml:"hierarchy"`
	Provider  ProviderConfig  `toml:"provider"`
	Session   SessionConfig   `toml:"session"`
}

// BufferConfig controls the working-context buffer.
type BufferConfig struct {
	MaxTokens    int     `toml:"max_tokens"`
	SafetyMargin float64 `toml:"safety_margin"`
	// Policy is one of: fifo, lru, importance, relevance.
	Policy string `toml:"policy"`
	// Relevance blend weights; ignored by the other policies.
	RecencyWeight    float64 `toml:"recency_weight"`
	FrequencyWeight  float64 `toml:"frequency_weight"`
	ImportanceWeight float64 `toml:"importance_weight"`
	// Compress enables LLM-backed compression before hard eviction.
	Compress bool `toml:"compress"`
}

// IndexConfig controls hybrid retrieval.
type IndexConfig struct {
	// Alpha is the weight on the semantic score in hybrid mode.
	Alpha float64 `toml:"alpha"`
	// EmbedCacheMB bounds the in-process embedding cache (0 disables it).
	EmbedCacheMB int `toml:"embed_cache_mb"`
}

// HierarchyConfig controls consolidation and forgetting.
type HierarchyConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	HalfLifeDays        float64 `toml:"half_life_days"`
	ForgetThreshold     float64 `toml:"forget_threshold"`
}

// ProviderConfig selects the injected embed/generate capabilities.
type ProviderConfig struct {
	Embedder   string     `toml:"embedder"`  // openai, ollama, hash
	Generator  string     `toml:"generator"` // anthropic, openai, ollama
	EmbedModel string     `toml:"embed_model"`
	Model      string     `toml:"model"`
	Keys       KeysConfig `toml:"keys"`
	OllamaHost string     `toml:"ollama_host"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
}

// SessionConfig controls prompt assembly in the orchestrator.
type SessionConfig struct {
	// AskBudget is the token budget for assembled prompts.
	AskBudget int `toml:"ask_budget"`
	// RecallK is how many memories recall pulls per query.
	RecallK int `toml:"recall_k"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Buffer: BufferConfig{
			MaxTokens:        4096,
			SafetyMargin:     0.9,
			Policy:           "relevance",
			RecencyWeight:    1.0 / 3,
			FrequencyWeight:  1.0 / 3,
			ImportanceWeight: 1.0 / 3,
		},
		Index: IndexConfig{
			Alpha:        0.5,
			EmbedCacheMB: 64,
		},
		Hierarchy: HierarchyConfig{
			SimilarityThreshold: 0.75,
			ConfidenceThreshold: 0.8,
			HalfLifeDays:        30,
			ForgetThreshold:     0.05,
		},
		Provider: ProviderConfig{
			Embedder:   "hash",
			Generator:  "anthropic",
			OllamaHost: "http://localhost:11434",
		},
		Session: SessionConfig{
			AskBudget: 8000,
			RecallK:   5,
		},
	}
}

// Path returns the config file location, honouring MNEMEX_CONFIG.
func Path() (string, error) {
	if p := os.Getenv("MNEMEX_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mnemex", "config.toml"), nil
}

// DataDir returns the directory holding the persisted memory database,
// honouring MNEMEX_HOME.
func DataDir() (string, error) {
	if p := os.Getenv("MNEMEX_HOME"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mnemex"), nil
}

// DBPath returns the SQLite database location inside the data directory.
func DBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mnemex.db"), nil
}

// Load reads the config file, applying defaults for missing values.
// A missing file is not an error; defaults are returned.
func Load() (Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return applyEnv(cfg), nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: load: %w", err)
	}
	return applyEnv(cfg), nil
}

// applyEnv lets environment variables override API keys from the file.
func applyEnv(cfg Config) Config {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Provider.Keys.OpenAI = v
	}
	return cfg
}

// Save writes the config to its standard location.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
