package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ligustah/partfetch/internal/progress"
	"github.com/ligustah/partfetch/pkg/chunked"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PARTFETCH_"

// Config defines configuration for the partfetch CLI.
type Config struct {
	// Endpoint is the bucket URL, e.g. "s3://data?region=us-east-1" or
	// "file:///srv/data".
	Endpoint string `yaml:"endpoint"`

	// Principal is recorded as the owner of uploaded objects.
	Principal string `yaml:"principal"`

	BlockSize        int64       `yaml:"block_size"`
	BufferSize       int64       `yaml:"buffer_size"`
	LegacyBlockCount bool        `yaml:"legacy_block_count"`
	Replication      int         `yaml:"replication"`
	Progress         bool        `yaml:"progress"`
	Debug            bool        `yaml:"debug"`
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior for HTTP sources.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with the stock block and buffer sizes.
func Default() Config {
	return Config{
		BlockSize:  chunked.DefaultBlockSize,
		BufferSize: chunked.DefaultBufferSize,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with human-readable sizes.
type yamlConfig struct {
	Endpoint         string          `yaml:"endpoint"`
	Principal        string          `yaml:"principal"`
	BlockSize        string          `yaml:"block_size"`
	BufferSize       string          `yaml:"buffer_size"`
	LegacyBlockCount bool            `yaml:"legacy_block_count"`
	Replication      int             `yaml:"replication"`
	Progress         bool            `yaml:"progress"`
	Debug            bool            `yaml:"debug"`
	Retry            yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Endpoint != "" {
		cfg.Endpoint = yc.Endpoint
	}
	if yc.Principal != "" {
		cfg.Principal = yc.Principal
	}
	if yc.BlockSize != "" {
		if cfg.BlockSize, err = progress.ParseBytes(yc.BlockSize); err != nil {
			return Config{}, fmt.Errorf("parse block_size: %w", err)
		}
	}
	if yc.BufferSize != "" {
		if cfg.BufferSize, err = progress.ParseBytes(yc.BufferSize); err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
	}
	cfg.LegacyBlockCount = yc.LegacyBlockCount
	if yc.Replication != 0 {
		cfg.Replication = yc.Replication
	}
	cfg.Progress = yc.Progress
	cfg.Debug = yc.Debug
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		if cfg.Retry.Backoff, err = time.ParseDuration(yc.Retry.Backoff); err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
	}
	if yc.Retry.MaxBackoff != "" {
		if cfg.Retry.MaxBackoff, err = time.ParseDuration(yc.Retry.MaxBackoff); err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
	}

	return cfg, nil
}

// LoadFromEnv overrides fields from PARTFETCH_* environment variables.
func (c *Config) LoadFromEnv() error {
	if v, ok := lookup("ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v, ok := lookup("PRINCIPAL"); ok {
		c.Principal = v
	}
	if err := envBytes("BLOCK_SIZE", &c.BlockSize); err != nil {
		return err
	}
	if err := envBytes("BUFFER_SIZE", &c.BufferSize); err != nil {
		return err
	}
	if v, ok := lookup("LEGACY_BLOCK_COUNT"); ok {
		c.LegacyBlockCount = parseBool(v)
	}
	if err := envInt("REPLICATION", &c.Replication); err != nil {
		return err
	}
	if v, ok := lookup("PROGRESS"); ok {
		c.Progress = parseBool(v)
	}
	if v, ok := lookup("DEBUG"); ok {
		c.Debug = parseBool(v)
	}
	if err := envInt("RETRY_ATTEMPTS", &c.Retry.Attempts); err != nil {
		return err
	}
	if err := envDuration("RETRY_BACKOFF", &c.Retry.Backoff); err != nil {
		return err
	}
	return envDuration("RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff)
}

func lookup(name string) (string, bool) {
	v := os.Getenv(EnvPrefix + name)
	return v, v != ""
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func envInt(name string, dst *int) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envBytes(name string, dst *int64) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := progress.ParseBytes(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	if c.BlockSize <= 0 {
		return errors.New("config: block_size must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.Replication < 0 {
		return errors.New("config: replication must not be negative")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Endpoint != "" {
		c.Endpoint = override.Endpoint
	}
	if override.Principal != "" {
		c.Principal = override.Principal
	}
	if override.BlockSize != 0 {
		c.BlockSize = override.BlockSize
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.LegacyBlockCount {
		c.LegacyBlockCount = true
	}
	if override.Replication != 0 {
		c.Replication = override.Replication
	}
	if override.Progress {
		c.Progress = true
	}
	if override.Debug {
		c.Debug = true
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
