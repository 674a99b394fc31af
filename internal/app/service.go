// Package service orchestrates uploads, analysis and image generation on top
// of the storage and image generation collaborators.
package service

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/classify"
	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/prompt"
	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

// Defaults applied by New.
const (
	DefaultInputBucket    = "levitate-input-music"
	DefaultOutputBucket   = "levitate-output-images"
	DefaultImageSize      = 1024
	DefaultGuidanceScale  = 8.0
	DefaultURLTTL         = 7 * 24 * time.Hour
	DefaultPlaybackTTL    = time.Hour
	DefaultMaxUploadBytes = 5 << 20
)

// History persists generation attempts.
type History interface {
	Record(ctx context.Context, rec model.GenerationRecord) error
	Recent(ctx context.Context, limit int) ([]model.GenerationRecord, error)
}

// Service implements the operations behind the HTTP API. It keeps no
// per-request state; every Generate call runs on the caller's goroutine.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store      storage.ObjectStore
	generator  imagegen.Generator
	extractor  *audio.Extractor
	classifier *classify.Classifier
	synth      *prompt.Synthesizer
	history    History
	signer     *storage.URLSigner
	seeds      SeedSource

	// Configuration
	promptTemplate string
	inputBucket    string
	outputBucket   string
	imageSize      int
	guidanceScale  float64
	outputMode     string
	urlTTL         time.Duration
	playbackTTL    time.Duration
	maxUploadBytes int64
	allowedExt     []string
	scratchDir     string

	now   func() time.Time
	newID func() string

	// State
	started   bool
	startedAt time.Time

	uploads           atomic.Int64
	generations       atomic.Int64
	generationsFailed atomic.Int64
	inFlight          atomic.Int64

	logger logger.Logger
}

// New constructs a Service. A store and a generator are required.
func New(opts ...Option) (*Service, error) {
	const op = "service.New"
	s := &Service{
		extractor:      audio.NewExtractor(),
		classifier:     classify.New(),
		signer:         storage.NewURLSigner("levitate-dev", ""),
		seeds:          RandomSeeds(),
		inputBucket:    DefaultInputBucket,
		outputBucket:   DefaultOutputBucket,
		imageSize:      DefaultImageSize,
		guidanceScale:  DefaultGuidanceScale,
		outputMode:     OutputUpload,
		urlTTL:         DefaultURLTTL,
		playbackTTL:    DefaultPlaybackTTL,
		maxUploadBytes: DefaultMaxUploadBytes,
		allowedExt:     []string{".mp3", ".wav"},
		scratchDir:     os.TempDir(),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrMissingStore)
	}
	if s.generator == nil {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrMissingGenerator)
	}
	synth, err := prompt.New(prompt.WithTemplate(s.promptTemplate))
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	s.synth = synth
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s, nil
}

// Start marks the service as ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "levitate service started",
		logger.String("inputBucket", s.inputBucket),
		logger.String("outputBucket", s.outputBucket),
		logger.String("outputMode", s.outputMode),
		logger.Int("imageSize", s.imageSize),
		logger.Bool("history", s.history != nil),
	)
	return nil
}

// Stop closes collaborators that hold resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if closer, ok := s.history.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing history failed", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(context.Background(), "levitate service stopped")
}

// MaxUploadBytes reports the configured upload limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"outputMode":        s.outputMode,
		"imageSize":         s.imageSize,
		"inputBucket":       s.inputBucket,
		"outputBucket":      s.outputBucket,
		"historyEnabled":    s.history != nil,
		"uploads":           s.uploads.Load(),
		"generations":       s.generations.Load(),
		"generationsFailed": s.generationsFailed.Load(),
		"inFlight":          s.inFlight.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
	}
	return stats
}
