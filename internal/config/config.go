package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration loaded from YAML
type Config struct {
	DataDir      string         `yaml:"data_dir"`
	DeleteFolder string         `yaml:"delete_folder"`
	Index        IndexConfig    `yaml:"index"`
	Executor     ExecutorConfig `yaml:"executor"`
	Logging      LoggingConfig  `yaml:"logging"`
	Server       ServerConfig   `yaml:"server"`
}

// IndexConfig controls the indexing subsystem
type IndexConfig struct {
	// BTreeCache enables the in-memory entry cache of the BTree strategy.
	// Streams then prime the cache by draining the directory first.
	BTreeCache         bool `yaml:"btree_cache"`
	BTreeCacheSize     int  `yaml:"btree_cache_size"`
	CountCacheCapacity int  `yaml:"count_cache_capacity"`
}

// ExecutorConfig controls query execution
type ExecutorConfig struct {
	Workers         int  `yaml:"workers"`
	ResultCache     bool `yaml:"result_cache"`
	ResultCacheSize int  `yaml:"result_cache_size"`
	// FastPaths lets SELECT answer simple shapes from the indexes alone.
	// When off every SELECT reads rows.
	FastPaths bool `yaml:"fast_paths"`
}

// LoggingConfig controls the slog handlers
type LoggingConfig struct {
	Level            string        `yaml:"level"`
	SeqURL           string        `yaml:"seq_url"`
	SeqBatchSize     int           `yaml:"seq_batch_size"`
	SeqFlushInterval time.Duration `yaml:"seq_flush_interval"`
}

// ServerConfig controls the TCP server
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir:      "./data",
		DeleteFolder: ".deleted",
		Index: IndexConfig{
			BTreeCache:         false,
			BTreeCacheSize:     1024,
			CountCacheCapacity: 10000,
		},
		Executor: ExecutorConfig{
			Workers:         runtime.NumCPU(),
			ResultCache:     true,
			ResultCacheSize: 512,
			FastPaths:       true,
		},
		Logging: LoggingConfig{
			Level:            "info",
			SeqBatchSize:     1,
			SeqFlushInterval: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Port: 4000,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.DeleteFolder == "" {
		return fmt.Errorf("delete_folder must not be empty")
	}
	if c.Index.BTreeCacheSize <= 0 {
		return fmt.Errorf("index.btree_cache_size must be positive, got %d", c.Index.BTreeCacheSize)
	}
	if c.Index.CountCacheCapacity <= 0 {
		return fmt.Errorf("index.count_cache_capacity must be positive, got %d", c.Index.CountCacheCapacity)
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be positive, got %d", c.Executor.Workers)
	}
	if c.Executor.ResultCacheSize <= 0 {
		return fmt.Errorf("executor.result_cache_size must be positive, got %d", c.Executor.ResultCacheSize)
	}
	if c.Logging.SeqBatchSize <= 0 {
		return fmt.Errorf("logging.seq_batch_size must be positive, got %d", c.Logging.SeqBatchSize)
	}
	return nil
}
