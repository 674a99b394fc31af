package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/levitate/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, int64(5<<20))
				convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.StorageS3)
				convey.So(cfg.Generation.ImageSize, convey.ShouldEqual, 1024)
				convey.So(cfg.Thresholds.MediumRMS, convey.ShouldEqual, 0.06)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LEVITATE_ADDR", ":8080")
			_ = os.Setenv("LEVITATE_MAX_UPLOAD_BYTES", "1048576")
			_ = os.Setenv("LEVITATE_STORAGE__DRIVER", "memory")
			_ = os.Setenv("LEVITATE_GENERATION__IMAGE_SIZE", "512")
			_ = os.Setenv("LEVITATE_ALLOWED_EXTENSIONS", "MP3, flac ,.wav")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env values override defaults, nested keys included", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, int64(1048576))
				convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.StorageMemory)
				convey.So(cfg.Storage.InputBucket, convey.ShouldEqual, "levitate-input-music")
				convey.So(cfg.Generation.ImageSize, convey.ShouldEqual, 512)
				convey.So(cfg.AllowedExtensions, convey.ShouldResemble, []string{".mp3", ".flac", ".wav"})
			})
		})

		convey.Convey("When loading config from a YAML file with an env override", func() {
			yamlContent := `
addr: ":9090"
storage:
  driver: nats
  nats_url: nats://broker:4222
generation:
  output_mode: inline
thresholds:
  warm_centroid: 1800
`
			tmpFile := createTempConfigFile(yamlContent, "yaml")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LEVITATE_CONFIG", tmpFile)
			_ = os.Setenv("LEVITATE_ADDR", ":7000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
				convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.StorageNATS)
				convey.So(cfg.Storage.NATSURL, convey.ShouldEqual, "nats://broker:4222")
				convey.So(cfg.Storage.OutputBucket, convey.ShouldEqual, "levitate-output-images")
				convey.So(cfg.Generation.OutputMode, convey.ShouldEqual, config.OutputInline)
				convey.So(cfg.Thresholds.WarmCentroid, convey.ShouldEqual, 1800.0)
				convey.So(cfg.Thresholds.BrightCentroid, convey.ShouldEqual, 3000.0)
			})
		})

		convey.Convey("When loading config from a TOML file", func() {
			tomlContent := `
log_level = "debug"

[imagegen]
driver = "http"
endpoint = "http://imagegen.local/v1/generate"
timeout_ms = 5000
`
			tmpFile := createTempConfigFile(tomlContent, "toml")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LEVITATE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it is parsed with the TOML parser", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Imagegen.Driver, convey.ShouldEqual, config.ImagegenHTTP)
				convey.So(cfg.Imagegen.Endpoint, convey.ShouldEqual, "http://imagegen.local/v1/generate")
				convey.So(cfg.ImagegenTimeout().Seconds(), convey.ShouldEqual, 5.0)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`, "yaml")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LEVITATE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the config file has an unknown extension", func() {
			_ = os.Setenv("LEVITATE_CONFIG", "/etc/levitate.ini")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it is rejected before reading", func() {
				convey.So(errors.Is(err, config.ErrUnsupportedFile), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LEVITATE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		ctx := context.Background()
		cases := []struct{ key, value string }{
			{"LEVITATE_ADDR", ""},
			{"LEVITATE_STORAGE__DRIVER", "ftp"},
			{"LEVITATE_IMAGEGEN__DRIVER", "http"},
			{"LEVITATE_GENERATION__IMAGE_SIZE", "768"},
			{"LEVITATE_GENERATION__OUTPUT_MODE", "email"},
			{"LEVITATE_THRESHOLDS__MEDIUM_RMS", "0.01"},
		}
		for _, tc := range cases {
			key, value := tc.key, tc.value
			convey.Convey("When "+key+" is "+value, func() {
				clearConfigEnvVars()
				_ = os.Setenv(key, value)
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx)

				convey.Convey("Then it should return a validation error", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(cfg, convey.ShouldBeNil)
				})
			})
		}
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content, ext string) string {
	tmpFile, err := os.CreateTemp("", "levitate-config-*."+ext)
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
