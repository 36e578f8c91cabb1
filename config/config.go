// Package config holds the settings for an image source Manager.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Skryldev/image-source/errors"
)

// Backend selects the codec and raster implementation.
type Backend string

const (
	BackendStdlib Backend = "stdlib"
	BackendVips   Backend = "vips"
)

// RemoteBackend selects the byte store behind the remote scheme.
type RemoteBackend string

const (
	RemoteNone RemoteBackend = ""
	RemoteHTTP RemoteBackend = "http"
	RemoteS3   RemoteBackend = "s3"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Disk cache.
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
	HashAlgorithm string `yaml:"hash_algorithm" mapstructure:"hash_algorithm"` // "sha1" or "blake3"
	EvictCorrupt  bool   `yaml:"evict_corrupt" mapstructure:"evict_corrupt"`

	// Fan-out bound for batch fetches; 0 = unbounded.
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes" mapstructure:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size" mapstructure:"chunk_size"`

	// Output.
	DefaultQuality int     `yaml:"default_quality" mapstructure:"default_quality"` // 1-100
	Backend        Backend `yaml:"backend" mapstructure:"backend"`

	// Resolution.
	ResolverCacheSize int `yaml:"resolver_cache_size" mapstructure:"resolver_cache_size"` // 0 disables
	MaxScaleDepth     int `yaml:"max_scale_depth" mapstructure:"max_scale_depth"`

	// Byte stores.
	AssetRoot string       `yaml:"asset_root" mapstructure:"asset_root"`
	Remote    RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// Logging / metrics.
	LogLevel         string `yaml:"log_level" mapstructure:"log_level"` // "debug", "info", "warn", "error"
	MetricsNamespace string `yaml:"metrics_namespace" mapstructure:"metrics_namespace"`
}

// RemoteConfig configures the remote source.
type RemoteConfig struct {
	Backend RemoteBackend `yaml:"backend" mapstructure:"backend"`
	// Scheme the remote source is registered under.
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// HTTP backend.
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	ThumbnailPath string        `yaml:"thumbnail_path" mapstructure:"thumbnail_path"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// S3 backend; the client itself is injected by the caller.
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	ThumbnailPrefix string `yaml:"thumbnail_prefix" mapstructure:"thumbnail_prefix"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		CacheDir:          defaultCacheDir(),
		HashAlgorithm:     "sha1",
		EvictCorrupt:      true,
		WorkerCount:       0,
		ChunkSize:         128 * 1024,
		DefaultQuality:    95,
		Backend:           BackendStdlib,
		ResolverCacheSize: 1024,
		MaxScaleDepth:     8,
		Remote: RemoteConfig{
			Scheme:  "dropbox",
			Timeout: 30 * time.Second,
		},
		LogLevel:         "info",
		MetricsNamespace: "imagesource",
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return base + string(os.PathSeparator) + "imagesource"
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	var errs []error
	if c.CacheDir == "" {
		errs = append(errs, errors.New("CacheDir must be set"))
	}
	switch strings.ToLower(c.HashAlgorithm) {
	case "", "sha1", "blake3":
	default:
		errs = append(errs, fmt.Errorf("unknown HashAlgorithm %q", c.HashAlgorithm))
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		errs = append(errs, errors.New("DefaultQuality must be between 1 and 100"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("ChunkSize must be positive"))
	}
	if c.WorkerCount < 0 || c.MaxImageBytes < 0 || c.ResolverCacheSize < 0 {
		errs = append(errs, errors.New("WorkerCount, MaxImageBytes and ResolverCacheSize must not be negative"))
	}
	if c.MaxScaleDepth < 1 {
		errs = append(errs, errors.New("MaxScaleDepth must be at least 1"))
	}
	switch c.Backend {
	case BackendStdlib, BackendVips:
	default:
		errs = append(errs, fmt.Errorf("unknown Backend %q", c.Backend))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateRemote(c.Remote)...)

	if err := errors.Join(errs...); err != nil {
		return apperrors.New(apperrors.CategoryConfig, "config.validate", err)
	}
	return nil
}

func validateRemote(r RemoteConfig) []error {
	var errs []error
	if r.Backend != RemoteNone && r.Scheme == "" {
		errs = append(errs, errors.New("Remote.Scheme must be set"))
	}
	switch r.Backend {
	case RemoteNone:
	case RemoteHTTP:
		if r.BaseURL == "" {
			errs = append(errs, errors.New("Remote.BaseURL is required for the http backend"))
		}
	case RemoteS3:
		if r.Bucket == "" {
			errs = append(errs, errors.New("Remote.Bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown Remote.Backend %q", r.Backend))
	}
	return errs
}

// Load reads a YAML file over Default() and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperrors.New(apperrors.CategoryConfig, "config.load", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, apperrors.New(apperrors.CategoryConfig, "config.load", fmt.Errorf("parse %s: %w", path, err))
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLevel maps a LogLevel string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown LogLevel %q", s)
}
