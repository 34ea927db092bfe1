package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	DBPath     string `yaml:"db_path"`
	CatalogDir string `yaml:"catalog_dir"`
	ModelDir   string `yaml:"model_dir"`
	BridgeURL  string `yaml:"bridge_url"`
	DryRun     bool   `yaml:"dry_run"`
	Debug      bool   `yaml:"debug"`
	LogFormat  string `yaml:"log_format"` // "human" or "json"

	Match   MatchConfig   `yaml:"match"`
	Learned LearnedConfig `yaml:"learned"`
	Scene   SceneConfig   `yaml:"scene"`
}

// MatchConfig holds the ensemble weights and confidence bands. The
// weights are tunables, not invariants; only the three-band behavior
// they produce is load-bearing.
type MatchConfig struct {
	Weights Weights `yaml:"weights"`
	Bands   Bands   `yaml:"bands"`
}

// Weights are the per-scorer contributions to the aggregated score.
type Weights struct {
	Structural float64 `yaml:"structural"`
	Keyword    float64 `yaml:"keyword"`
	Semantic   float64 `yaml:"semantic"`
}

// Bands split the aggregated confidence into execute / adapt / reject.
type Bands struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

// LearnedConfig controls the learned-mapping store lookups.
type LearnedConfig struct {
	Threshold float64 `yaml:"threshold"` // minimum cosine similarity for reuse
}

// SceneConfig controls scene snapshot caching.
type SceneConfig struct {
	SummaryTTLSeconds int `yaml:"summary_ttl_seconds"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".scenepilot")
	return &Config{
		DBPath:     filepath.Join(base, "scenepilot.db"),
		CatalogDir: filepath.Join(base, "workflows"),
		ModelDir:   filepath.Join(base, "models"),
		BridgeURL:  "http://localhost:8733",
		DryRun:     false,
		Debug:      false,
		LogFormat:  "human",
		Match: MatchConfig{
			Weights: Weights{Structural: 0.15, Keyword: 0.25, Semantic: 0.60},
			Bands:   Bands{High: 0.70, Low: 0.40},
		},
		Learned: LearnedConfig{Threshold: 0.80},
		Scene:   SceneConfig{SummaryTTLSeconds: 5},
	}
}

// Load reads configuration from file, creating it with defaults if it
// doesn't exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default() // start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	w := c.Match.Weights
	if w.Structural < 0 || w.Keyword < 0 || w.Semantic < 0 {
		return fmt.Errorf("match weights must be non-negative")
	}
	if w.Structural+w.Keyword+w.Semantic == 0 {
		return fmt.Errorf("at least one match weight must be positive")
	}
	b := c.Match.Bands
	if b.Low < 0 || b.High > 1 || b.Low > b.High {
		return fmt.Errorf("confidence bands must satisfy 0 <= low <= high <= 1")
	}
	if c.Learned.Threshold < 0 || c.Learned.Threshold > 1 {
		return fmt.Errorf("learned threshold must be in [0, 1]")
	}
	return nil
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".scenepilot", "config.yaml")
}
