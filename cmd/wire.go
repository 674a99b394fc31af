package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/levitate/internal/adapters/history"
	"github.com/okian/levitate/internal/adapters/imagegen/bedrock"
	"github.com/okian/levitate/internal/adapters/imagegen/httpgen"
	"github.com/okian/levitate/internal/adapters/storage/memstore"
	"github.com/okian/levitate/internal/adapters/storage/natsstore"
	"github.com/okian/levitate/internal/adapters/storage/s3store"
	service "github.com/okian/levitate/internal/app"
	"github.com/okian/levitate/internal/config"
	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/classify"
	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/logger"
)

const signSecretBytes = 32

// components are the collaborators built from configuration.
type components struct {
	store     storage.ObjectStore
	generator imagegen.Generator
	history   *history.Store
	signer    *storage.URLSigner
	closers   []func() error
}

// Close releases connections in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.Named("wire")
	signer, err := newSigner(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c := &components{signer: signer}

	if err := c.buildStore(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.buildGenerator(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	if cfg.History.Enabled {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		c.history = h
	}

	log.Info(ctx, "components ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("imagegen", cfg.Imagegen.Driver),
		logger.Bool("history", cfg.History.Enabled),
	)
	return c, nil
}

func (c *components) buildStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		c.store = memstore.New(memstore.WithSigner(c.signer))
	case config.StorageNATS:
		nc, err := nats.Connect(cfg.Storage.NATSURL, nats.Name("levitate"))
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.Storage.NATSURL, err)
		}
		c.closers = append(c.closers, func() error { return nc.Drain() })
		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		st, err := natsstore.New(js, c.signer)
		if err != nil {
			return err
		}
		c.store = st
	case config.StorageS3:
		st, err := s3store.NewFromRegion(ctx, cfg.Storage.Region)
		if err != nil {
			return fmt.Errorf("s3 store: %w", err)
		}
		c.store = st
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", config.ErrInvalidConfig, cfg.Storage.Driver)
	}
	return nil
}

func (c *components) buildGenerator(ctx context.Context, cfg *config.Config) error {
	switch cfg.Imagegen.Driver {
	case config.ImagegenBedrock:
		g, err := bedrock.NewFromRegion(ctx, cfg.Imagegen.Region, bedrock.WithModelID(cfg.Imagegen.ModelID))
		if err != nil {
			return fmt.Errorf("bedrock generator: %w", err)
		}
		c.generator = g
	case config.ImagegenHTTP:
		c.generator = httpgen.New(cfg.Imagegen.Endpoint,
			httpgen.WithAPIKey(cfg.Imagegen.APIKey),
			httpgen.WithModel(cfg.Imagegen.ModelID),
			httpgen.WithTimeout(cfg.ImagegenTimeout()),
		)
	default:
		return fmt.Errorf("%w: unknown imagegen.driver %q", config.ErrInvalidConfig, cfg.Imagegen.Driver)
	}
	return nil
}

// newSigner keys signed /objects links. Without a configured secret links
// stop verifying after a restart.
func newSigner(ctx context.Context, cfg *config.Config, log logger.Logger) (*storage.URLSigner, error) {
	secret := cfg.Storage.SignSecret
	if secret == "" {
		buf := make([]byte, signSecretBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate sign secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		if cfg.Storage.Driver != config.StorageS3 {
			log.Warn(ctx, "storage.sign_secret is empty; using a random secret for this process")
		}
	}
	return storage.NewURLSigner(secret, cfg.Storage.PublicBaseURL), nil
}

func newExtractor(cfg *config.Config) *audio.Extractor {
	return audio.NewExtractor(audio.WithMaxDuration(time.Duration(cfg.Generation.MaxAnalysisSeconds) * time.Second))
}

func thresholds(cfg *config.Config) classify.Thresholds {
	t := cfg.Thresholds
	return classify.Thresholds{
		LowRMS:         t.LowRMS,
		MediumRMS:      t.MediumRMS,
		WarmCentroid:   t.WarmCentroid,
		TenseContrast:  t.TenseContrast,
		TenseZCR:       t.TenseZCR,
		BrightCentroid: t.BrightCentroid,
	}
}

func serviceOptions(cfg *config.Config, c *components) []service.Option {
	opts := []service.Option{
		service.WithLogger(logger.Named("service")),
		service.WithStore(c.store),
		service.WithGenerator(c.generator),
		service.WithSigner(c.signer),
		service.WithExtractor(newExtractor(cfg)),
		service.WithThresholds(thresholds(cfg)),
		service.WithPromptTemplate(cfg.Generation.PromptTemplate),
		service.WithBuckets(cfg.Storage.InputBucket, cfg.Storage.OutputBucket),
		service.WithImageSize(cfg.Generation.ImageSize),
		service.WithGuidanceScale(cfg.Generation.GuidanceScale),
		service.WithOutputMode(cfg.Generation.OutputMode),
		service.WithURLTTL(cfg.URLTTL()),
		service.WithPlaybackTTL(cfg.PlaybackTTL()),
		service.WithMaxUploadBytes(cfg.MaxUploadBytes),
		service.WithAllowedExtensions(cfg.AllowedExtensions),
		service.WithScratchDir(cfg.Generation.ScratchDir),
	}
	// A nil *history.Store must not become a non-nil History.
	if c.history != nil {
		opts = append(opts, service.WithHistory(c.history))
	}
	return opts
}
