// Package config loads fragcache settings from a TOML or YAML file and
// builds the store, logger and cache they describe.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/goforj/fragcache"
)

var (
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrUnknownDriver = errors.New("config: unknown store driver")
)

// Duration is a time.Duration written as "30s" or "5m" in config files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type (
	MemoryConfig struct {
		CleanupInterval Duration `toml:"cleanup_interval" yaml:"cleanup_interval"`
	}

	RedisConfig struct {
		Addr     string `toml:"addr" yaml:"addr"`
		Username string `toml:"username" yaml:"username"`
		Password string `toml:"password" yaml:"password"`
		DB       int    `toml:"db" yaml:"db"`
	}

	SQLConfig struct {
		Driver string `toml:"driver" yaml:"driver"`
		DSN    string `toml:"dsn" yaml:"dsn"`
		Table  string `toml:"table" yaml:"table"`
	}

	NATSConfig struct {
		URL    string `toml:"url" yaml:"url"`
		Bucket string `toml:"bucket" yaml:"bucket"`
		// BucketTTL stores raw values and lets the bucket's max age expire them.
		BucketTTL bool `toml:"bucket_ttl" yaml:"bucket_ttl"`
	}

	DynamoConfig struct {
		Region   string `toml:"region" yaml:"region"`
		Endpoint string `toml:"endpoint" yaml:"endpoint"`
		Table    string `toml:"table" yaml:"table"`
	}

	FileConfig struct {
		Dir string `toml:"dir" yaml:"dir"`
	}

	StoreConfig struct {
		Driver        string       `toml:"driver" yaml:"driver"`
		Prefix        string       `toml:"prefix" yaml:"prefix"`
		Compression   string       `toml:"compression" yaml:"compression"`
		MaxValueBytes int          `toml:"max_value_bytes" yaml:"max_value_bytes"`
		EncryptionKey string       `toml:"encryption_key" yaml:"encryption_key"`
		Memory        MemoryConfig `toml:"memory" yaml:"memory"`
		Redis         RedisConfig  `toml:"redis" yaml:"redis"`
		SQL           SQLConfig    `toml:"sql" yaml:"sql"`
		NATS          NATSConfig   `toml:"nats" yaml:"nats"`
		Dynamo        DynamoConfig `toml:"dynamo" yaml:"dynamo"`
		File          FileConfig   `toml:"file" yaml:"file"`
	}

	DefaultsConfig struct {
		Keys          []string       `toml:"keys" yaml:"keys"`
		KeyAttributes map[string]any `toml:"key_attributes" yaml:"key_attributes"`
		TTL           Duration       `toml:"ttl" yaml:"ttl"`
	}

	LoggingConfig struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
	}

	Config struct {
		Namespace  string         `toml:"namespace" yaml:"namespace"`
		SchemaKey  string         `toml:"schema_key" yaml:"schema_key"`
		DefaultTTL Duration       `toml:"default_ttl" yaml:"default_ttl"`
		Store      StoreConfig    `toml:"store" yaml:"store"`
		Defaults   DefaultsConfig `toml:"defaults" yaml:"defaults"`
		Logging    LoggingConfig  `toml:"logging" yaml:"logging"`
	}
)

// Default returns the configuration used when no file is given: an
// in-memory store with info logging.
func Default() *Config {
	return &Config{
		Store:   StoreConfig{Driver: string(fragcache.DriverMemory)},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path and decodes it by extension. Unknown fields are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(data, cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the driver, logging settings and default options.
func (c *Config) Validate() error {
	switch fragcache.Driver(c.Store.Driver) {
	case fragcache.DriverNull, fragcache.DriverMemory, fragcache.DriverRedis, fragcache.DriverFile,
		fragcache.DriverSQL, fragcache.DriverNATS, fragcache.DriverDynamo:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error", "none":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	switch fragcache.CompressionCodec(c.Store.Compression) {
	case "", fragcache.CompressionNone, fragcache.CompressionGzip:
	default:
		return fmt.Errorf("%w: %q", fragcache.ErrUnsupportedCodec, c.Store.Compression)
	}
	return c.FragmentDefaults().Validate()
}

// FragmentDefaults returns the default fragment options.
func (c *Config) FragmentDefaults() fragcache.Options {
	return fragcache.Options{
		Keys:          c.Defaults.Keys,
		KeyAttributes: c.Defaults.KeyAttributes,
		TTL:           time.Duration(c.Defaults.TTL),
	}
}
