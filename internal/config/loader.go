package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LEVITATE_"
	// EnvConfigFile names the variable holding an optional config file path.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// listKeys are split on commas when they come from the environment.
var listKeys = []string{"allowed_extensions", "cors_origins"}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML, or TOML when the path ends in .toml) if LEVITATE_CONFIG is set
//  3. env (prefix LEVITATE_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LEVITATE_STORAGE__DRIVER -> storage.driver, LEVITATE_MAX_UPLOAD_BYTES -> max_upload_bytes
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if key == EnvConfigFile {
			return "", nil
		}
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if slices.Contains(listKeys, key) {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.AllowedExtensions = normalizeExtensions(cfg.AllowedExtensions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.Addr == "":
		return fail("addr must not be empty")
	case c.MaxUploadBytes <= 0:
		return fail("max_upload_bytes must be positive")
	case len(c.AllowedExtensions) == 0:
		return fail("allowed_extensions must not be empty")
	}
	switch c.Storage.Driver {
	case StorageS3, StorageNATS, StorageMemory:
	default:
		return fail("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.InputBucket == "" || c.Storage.OutputBucket == "" {
		return fail("storage buckets must not be empty")
	}
	switch c.Imagegen.Driver {
	case ImagegenBedrock:
	case ImagegenHTTP:
		if c.Imagegen.Endpoint == "" {
			return fail("imagegen.endpoint is required for the http driver")
		}
	default:
		return fail("unknown imagegen.driver %q", c.Imagegen.Driver)
	}
	if c.Imagegen.TimeoutMS <= 0 {
		return fail("imagegen.timeout_ms must be positive")
	}
	g := c.Generation
	if g.ImageSize != 512 && g.ImageSize != 1024 {
		return fail("generation.image_size must be 512 or 1024, got %d", g.ImageSize)
	}
	if g.GuidanceScale <= 0 {
		return fail("generation.guidance_scale must be positive")
	}
	if g.OutputMode != OutputInline && g.OutputMode != OutputUpload {
		return fail("generation.output_mode must be %q or %q", OutputInline, OutputUpload)
	}
	if g.URLTTLHours <= 0 || g.PlaybackTTLMinutes <= 0 {
		return fail("generation link lifetimes must be positive")
	}
	if g.MaxAnalysisSeconds < 0 {
		return fail("generation.max_analysis_seconds must not be negative")
	}
	t := c.Thresholds
	if t.LowRMS <= 0 || t.MediumRMS < t.LowRMS {
		return fail("thresholds: need 0 < low_rms <= medium_rms")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fail("history.path is required when history is enabled")
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeExtensions lower-cases entries and adds the leading dot.
func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}
