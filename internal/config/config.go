// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config with defaults; Load layers a file and env on top.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Storage drivers.
const (
	StorageS3     = "s3"
	StorageNATS   = "nats"
	StorageMemory = "memory"
)

// Image generation drivers.
const (
	ImagegenBedrock = "bedrock"
	ImagegenHTTP    = "http"
)

// Output modes of a generation.
const (
	OutputInline = "inline"
	OutputUpload = "upload"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// MaxUploadBytes caps POST /upload bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// AllowedExtensions lists accepted upload extensions, lower case with dot.
	AllowedExtensions []string `koanf:"allowed_extensions"`

	// CORSOrigins lists allowed browser origins. "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	Storage    Storage    `koanf:"storage"`
	Imagegen   Imagegen   `koanf:"imagegen"`
	Generation Generation `koanf:"generation"`
	Thresholds Thresholds `koanf:"thresholds"`
	History    History    `koanf:"history"`
}

// Storage selects and configures the object store.
type Storage struct {
	Driver       string `koanf:"driver"`
	Region       string `koanf:"region"`
	InputBucket  string `koanf:"input_bucket"`
	OutputBucket string `koanf:"output_bucket"`
	NATSURL      string `koanf:"nats_url"`
	// SignSecret keys the HMAC used for /objects links on stores that
	// cannot presign natively.
	SignSecret string `koanf:"sign_secret"`
	// PublicBaseURL prefixes signed /objects links, e.g. "https://levitate.example".
	PublicBaseURL string `koanf:"public_base_url"`
}

// Imagegen selects and configures the remote image generator.
type Imagegen struct {
	Driver    string `koanf:"driver"`
	Region    string `koanf:"region"`
	ModelID   string `koanf:"model_id"`
	Endpoint  string `koanf:"endpoint"`
	APIKey    string `koanf:"api_key"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// Generation holds pipeline parameters.
type Generation struct {
	ImageSize          int     `koanf:"image_size"`
	GuidanceScale      float64 `koanf:"guidance_scale"`
	OutputMode         string  `koanf:"output_mode"`
	URLTTLHours        int     `koanf:"url_ttl_hours"`
	PlaybackTTLMinutes int     `koanf:"playback_ttl_minutes"`
	ScratchDir         string  `koanf:"scratch_dir"`
	PromptTemplate     string  `koanf:"prompt_template"`
	// MaxAnalysisSeconds truncates long tracks before analysis and bounds
	// the spectrogram held per request; 0 analyzes everything.
	MaxAnalysisSeconds int `koanf:"max_analysis_seconds"`
}

// Thresholds overrides the classifier cut-offs.
type Thresholds struct {
	LowRMS         float64 `koanf:"low_rms"`
	MediumRMS      float64 `koanf:"medium_rms"`
	WarmCentroid   float64 `koanf:"warm_centroid"`
	TenseContrast  float64 `koanf:"tense_contrast"`
	TenseZCR       float64 `koanf:"tense_zcr"`
	BrightCentroid float64 `koanf:"bright_centroid"`
}

// History configures the sqlite generation log.
type History struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8000",
		MaxUploadBytes:    5 << 20,
		AllowedExtensions: []string{".mp3", ".wav"},
		CORSOrigins:       []string{"*"},
		Storage: Storage{
			Driver:       StorageS3,
			Region:       "us-east-1",
			InputBucket:  "levitate-input-music",
			OutputBucket: "levitate-output-images",
			NATSURL:      "nats://127.0.0.1:4222",
		},
		Imagegen: Imagegen{
			Driver:    ImagegenBedrock,
			Region:    "us-east-1",
			ModelID:   "amazon.titan-image-generator-v2:0",
			TimeoutMS: 120_000,
		},
		Generation: Generation{
			ImageSize:          1024,
			GuidanceScale:      8.0,
			OutputMode:         OutputUpload,
			URLTTLHours:        7 * 24,
			PlaybackTTLMinutes: 60,
			ScratchDir:         os.TempDir(),
			MaxAnalysisSeconds: 300,
		},
		Thresholds: Thresholds{
			LowRMS:         0.03,
			MediumRMS:      0.06,
			WarmCentroid:   2000,
			TenseContrast:  25,
			TenseZCR:       0.1,
			BrightCentroid: 3000,
		},
		History: History{
			Enabled: false,
			Path:    filepath.Join("data", "levitate.db"),
		},
	}
}

// ImagegenTimeout returns the remote generation timeout.
func (c *Config) ImagegenTimeout() time.Duration {
	return time.Duration(c.Imagegen.TimeoutMS) * time.Millisecond
}

// URLTTL returns the lifetime of generated image links.
func (c *Config) URLTTL() time.Duration {
	return time.Duration(c.Generation.URLTTLHours) * time.Hour
}

// PlaybackTTL returns the lifetime of music playback links.
func (c *Config) PlaybackTTL() time.Duration {
	return time.Duration(c.Generation.PlaybackTTLMinutes) * time.Minute
}
