// Package config provides configuration loading for the weightpack CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the CLI.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Compress  CompressConfig  `yaml:"compress"`
	Pool      PoolConfig      `yaml:"pool"`
	Resources ResourcesConfig `yaml:"resources"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is one of local, minio, s3.
	Backend string `yaml:"backend"`
	// Path is the directory of the local backend.
	Path string `yaml:"path"`
	// Mmap maps local files instead of reading them; defaults to true.
	Mmap *bool `yaml:"mmap"`
	// Compression is one of none, lz4, zstd.
	Compression string      `yaml:"compression"`
	Bucket      string      `yaml:"bucket"`
	Prefix      string      `yaml:"prefix"`
	MinIO       MinIOConfig `yaml:"minio"`
	S3          S3Config    `yaml:"s3"`
}

// MmapOrDefault returns whether to mmap local files; defaults to true when unset.
func (s *StorageConfig) MmapOrDefault() bool {
	if s.Mmap != nil {
		return *s.Mmap
	}
	return true
}

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Config holds AWS S3 settings. Credentials come from the default AWS
// provider chain.
type S3Config struct {
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	PartSizeMB  int64  `yaml:"part_size_mb"`
	Concurrency int    `yaml:"concurrency"`
}

// CacheConfig holds cache file settings.
type CacheConfig struct {
	Filename  string `yaml:"filename"`
	Checksums bool   `yaml:"checksums"`
}

// CompressConfig selects representations.
type CompressConfig struct {
	// Default is the representation of tensors without an override.
	Default string `yaml:"default"`
	// Tensors maps tensor names to representations.
	Tensors map[string]string `yaml:"tensors"`
	// Stats logs distortion statistics per tensor.
	Stats bool `yaml:"stats"`
}

// RepresentationFor returns the representation configured for tensor name.
func (c *CompressConfig) RepresentationFor(name string) string {
	if r, ok := c.Tensors[name]; ok {
		return r
	}
	return c.Default
}

// PoolConfig sizes the worker pool. Zero selects GOMAXPROCS.
type PoolConfig struct {
	Workers int `yaml:"workers"`
}

// ResourcesConfig bounds memory and IO.
type ResourcesConfig struct {
	MemoryLimitMB   int64 `yaml:"memory_limit_mb"`
	MaxConcurrentIO int64 `yaml:"max_concurrent_io"`
	IOLimitMBPerSec int64 `yaml:"io_limit_mb_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Path != "" && !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(filepath.Dir(path), cfg.Storage.Path)
	}
	return cfg, nil
}

// Parse parses YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Backend == "local" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "."
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = "none"
	}
	if cfg.Storage.S3.PartSizeMB == 0 {
		cfg.Storage.S3.PartSizeMB = 16
	}
	if cfg.Storage.S3.Concurrency == 0 {
		cfg.Storage.S3.Concurrency = 5
	}
	if cfg.Cache.Filename == "" {
		cfg.Cache.Filename = "weights.wpk"
	}
	if cfg.Compress.Default == "" {
		cfg.Compress.Default = "sfp"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Environment variables overriding secrets and endpoints.
const (
	EnvMinIOEndpoint  = "WEIGHTPACK_MINIO_ENDPOINT"
	EnvMinIOAccessKey = "WEIGHTPACK_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey = "WEIGHTPACK_MINIO_SECRET_KEY"
	EnvBucket         = "WEIGHTPACK_BUCKET"
	EnvWorkers        = "WEIGHTPACK_WORKERS"
	EnvLogLevel       = "WEIGHTPACK_LOG_LEVEL"
)

// ApplyEnv overrides fields from environment variables read with getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Storage.MinIO.Endpoint, EnvMinIOEndpoint)
	set(&cfg.Storage.MinIO.AccessKey, EnvMinIOAccessKey)
	set(&cfg.Storage.MinIO.SecretKey, EnvMinIOSecretKey)
	set(&cfg.Storage.Bucket, EnvBucket)
	set(&cfg.Log.Level, EnvLogLevel)

	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Pool.Workers = n
	}
	return nil
}

var validRepresentations = []string{"f32", "bf16", "sfp", "nuq"}

func validRepresentation(r string) bool {
	for _, v := range validRepresentations {
		if strings.EqualFold(v, r) {
			return true
		}
	}
	return false
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("storage.minio.endpoint is required"))
		}
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required"))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want local, minio or s3", c.Storage.Backend))
	}

	switch c.Storage.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("storage.compression %q: want none, lz4 or zstd", c.Storage.Compression))
	}

	if !validRepresentation(c.Compress.Default) {
		errs = append(errs, fmt.Errorf("compress.default %q: want one of %v", c.Compress.Default, validRepresentations))
	}
	for name, r := range c.Compress.Tensors {
		if !validRepresentation(r) {
			errs = append(errs, fmt.Errorf("compress.tensors[%s] %q: want one of %v", name, r, validRepresentations))
		}
	}

	if c.Pool.Workers < 0 {
		errs = append(errs, fmt.Errorf("pool.workers must not be negative, got %d", c.Pool.Workers))
	}
	if c.Resources.MemoryLimitMB < 0 || c.Resources.MaxConcurrentIO < 0 || c.Resources.IOLimitMBPerSec < 0 {
		errs = append(errs, errors.New("resources limits must not be negative"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
