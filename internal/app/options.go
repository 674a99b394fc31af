package service

import (
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/classify"
	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/logger"
)

// Output modes.
const (
	OutputInline = "inline"
	OutputUpload = "upload"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the object store for tracks and images.
func WithStore(store storage.ObjectStore) Option {
	return func(s *Service) { s.store = store }
}

// WithGenerator sets the image generator.
func WithGenerator(g imagegen.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithExtractor replaces the default feature extractor.
func WithExtractor(e *audio.Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithThresholds sets the classifier thresholds.
func WithThresholds(t classify.Thresholds) Option {
	return func(s *Service) { s.classifier = classify.New(classify.WithThresholds(t)) }
}

// WithPromptTemplate replaces the prompt template. The template is checked
// in New.
func WithPromptTemplate(tpl string) Option {
	return func(s *Service) { s.promptTemplate = tpl }
}

// WithHistory enables the generation log.
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithSigner sets the signer used to verify links served by OpenSigned.
func WithSigner(signer *storage.URLSigner) Option {
	return func(s *Service) {
		if signer != nil {
			s.signer = signer
		}
	}
}

// WithSeedSource sets where generation seeds come from.
func WithSeedSource(src SeedSource) Option {
	return func(s *Service) {
		if src != nil {
			s.seeds = src
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the generation id source. The first eight
// characters of an id also make output keys unique.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithBuckets sets the input and output buckets.
func WithBuckets(input, output string) Option {
	return func(s *Service) {
		if input != "" {
			s.inputBucket = input
		}
		if output != "" {
			s.outputBucket = output
		}
	}
}

// WithImageSize sets the square image edge in pixels.
func WithImageSize(px int) Option {
	return func(s *Service) {
		if px > 0 {
			s.imageSize = px
		}
	}
}

// WithGuidanceScale sets the prompt adherence passed to the generator.
func WithGuidanceScale(g float64) Option {
	return func(s *Service) {
		if g > 0 {
			s.guidanceScale = g
		}
	}
}

// WithOutputMode selects inline base64 output or upload plus link.
func WithOutputMode(mode string) Option {
	return func(s *Service) {
		switch mode {
		case OutputInline, OutputUpload:
			s.outputMode = mode
		}
	}
}

// WithURLTTL sets how long generated image links stay valid.
func WithURLTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urlTTL = d
		}
	}
}

// WithPlaybackTTL sets how long track playback links stay valid.
func WithPlaybackTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.playbackTTL = d
		}
	}
}

// WithMaxUploadBytes caps upload size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithAllowedExtensions sets the accepted upload extensions.
func WithAllowedExtensions(exts []string) Option {
	return func(s *Service) {
		if len(exts) == 0 {
			return
		}
		s.allowedExt = make([]string, 0, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.allowedExt = append(s.allowedExt, e)
		}
	}
}

// WithScratchDir sets where downloaded tracks are spooled during analysis.
func WithScratchDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.scratchDir = dir
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
