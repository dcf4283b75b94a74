package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/goals"
	"github.com/l3aro/go-cegar/pkg/reached"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// Config holds all configuration for go-cegar
type Config struct {
	// Exploration
	Traversal         string `yaml:"traversal" env:"CEGAR_TRAVERSAL"`
	RandomSeed        int64  `yaml:"random_seed" env:"CEGAR_RANDOM_SEED"`
	StopAtFirstTarget bool   `yaml:"stop_at_first_target" env:"CEGAR_STOP_AT_FIRST_TARGET"`
	Merge             string `yaml:"merge" env:"CEGAR_MERGE"`

	// Refinement
	Restart      string `yaml:"restart" env:"CEGAR_RESTART"`
	RelocateRoot bool   `yaml:"relocate_root" env:"CEGAR_RELOCATE_ROOT"`
	MaxRounds    int    `yaml:"max_rounds" env:"CEGAR_MAX_ROUNDS"`

	// Bounded sub-analyses
	GoalTimeout     time.Duration `yaml:"goal_timeout" env:"CEGAR_GOAL_TIMEOUT"`
	TimeoutStrategy string        `yaml:"timeout_strategy" env:"CEGAR_TIMEOUT_STRATEGY"`
	TimeoutFactor   float64       `yaml:"timeout_factor" env:"CEGAR_TIMEOUT_FACTOR"`
	Workers         int           `yaml:"workers" env:"CEGAR_WORKERS"`

	// Caches
	TransferCacheSize int    `yaml:"transfer_cache_size" env:"CEGAR_TRANSFER_CACHE_SIZE"`
	ResultStore       string `yaml:"result_store" env:"CEGAR_RESULT_STORE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"CEGAR_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"CEGAR_LOG_JSON"`
	Verbose  bool   `yaml:"verbose" env:"CEGAR_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Traversal:         string(reached.BFS),
		RandomSeed:        0,
		StopAtFirstTarget: true,
		Merge:             "sep",
		Restart:           string(refine.PolicyRoot),
		RelocateRoot:      false,
		MaxRounds:         0,
		GoalTimeout:       30 * time.Second,
		TimeoutStrategy:   string(goals.Skip),
		TimeoutFactor:     2,
		Workers:           1,
		TransferCacheSize: goals.DefaultMemoSize,
		ResultStore:       "",
		LogLevel:          "info",
		LogJSON:           false,
		Verbose:           false,
	}
}

// GlobalPath returns the global config file path (~/.cegar/config.yaml)
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cegar", "config.yaml")
	}
	return filepath.Join(home, ".cegar", "config.yaml")
}

// ProjectPath returns the project-level config file path (./.cegar/config.yaml)
func ProjectPath() string {
	return filepath.Join(".cegar", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.cegar/config.yaml)
// 2. Environment variables
// 3. Global config (~/.cegar/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(cfg, GlobalPath()); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := mergeFile(cfg, ProjectPath()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file at path onto cfg. A missing file is skipped.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CEGAR_TRAVERSAL"); v != "" {
		cfg.Traversal = v
	}
	if v := os.Getenv("CEGAR_RANDOM_SEED"); v != "" {
		cfg.RandomSeed = int64(parseInt(v))
	}
	if v := os.Getenv("CEGAR_STOP_AT_FIRST_TARGET"); v != "" {
		cfg.StopAtFirstTarget = parseBool(v)
	}
	if v := os.Getenv("CEGAR_MERGE"); v != "" {
		cfg.Merge = v
	}
	if v := os.Getenv("CEGAR_RESTART"); v != "" {
		cfg.Restart = v
	}
	if v := os.Getenv("CEGAR_RELOCATE_ROOT"); v != "" {
		cfg.RelocateRoot = parseBool(v)
	}
	if v := os.Getenv("CEGAR_MAX_ROUNDS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxRounds = i
		}
	}
	if v := os.Getenv("CEGAR_GOAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CEGAR_GOAL_TIMEOUT: %w", err)
		}
		cfg.GoalTimeout = d
	}
	if v := os.Getenv("CEGAR_TIMEOUT_STRATEGY"); v != "" {
		cfg.TimeoutStrategy = v
	}
	if v := os.Getenv("CEGAR_TIMEOUT_FACTOR"); v != "" {
		if f := parseFloat(v); f > 0 {
			cfg.TimeoutFactor = f
		}
	}
	if v := os.Getenv("CEGAR_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("CEGAR_TRANSFER_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.TransferCacheSize = i
		}
	}
	if v := os.Getenv("CEGAR_RESULT_STORE"); v != "" {
		cfg.ResultStore = v
	}
	if v := os.Getenv("CEGAR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CEGAR_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("CEGAR_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	return nil
}

// Validate checks that every option has a supported value
func (c *Config) Validate() error {
	if _, err := reached.ParseOrder(c.Traversal); err != nil {
		return fmt.Errorf("traversal: %w", err)
	}
	switch c.Merge {
	case "sep", "join":
	default:
		return fmt.Errorf("invalid merge: %s (must be 'sep' or 'join')", c.Merge)
	}
	if _, err := refine.ParsePolicy(c.Restart); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must be non-negative")
	}

	if c.GoalTimeout < 0 {
		return fmt.Errorf("goal_timeout must be non-negative")
	}
	if _, err := goals.ParseTimeoutStrategy(c.TimeoutStrategy); err != nil {
		return fmt.Errorf("timeout_strategy: %w", err)
	}
	if c.TimeoutFactor <= 1 {
		return fmt.Errorf("timeout_factor must be greater than 1")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if c.TransferCacheSize <= 0 {
		return fmt.Errorf("transfer_cache_size must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Order returns the parsed traversal order.
func (c *Config) Order() reached.Order {
	o, _ := reached.ParseOrder(c.Traversal)
	return o
}

// Policy returns the parsed restart policy.
func (c *Config) Policy() refine.Policy {
	p, _ := refine.ParsePolicy(c.Restart)
	return p
}

// Strategy returns the parsed timeout strategy.
func (c *Config) Strategy() goals.TimeoutStrategy {
	s, _ := goals.ParseTimeoutStrategy(c.TimeoutStrategy)
	return s
}

// Level returns the parsed log level; Verbose forces debug.
func (c *Config) Level() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	l, _ := log.ParseLevel(c.LogLevel)
	return l
}

// parseFloat attempts to parse a string as float64
func parseFloat(s string) float64 {
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return 0
	}
	return f
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
