package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
	"github.com/okian/levitate/pkg/metrics"
)

// outputKeyTime is the UTC timestamp layout embedded in output keys.
const outputKeyTime = "20060102T150405"

// run tracks one pass through the pipeline.
type run struct {
	id         string
	key        string
	stage      model.Stage
	start      time.Time
	stageStart time.Time
	rec        model.GenerationRecord
	log        logger.Logger
}

func (s *Service) advance(ctx context.Context, r *run, next model.Stage) {
	now := s.now()
	metrics.RecordStageDuration(string(r.stage), now.Sub(r.stageStart))
	r.log.Debug(ctx, "stage", logger.String("from", string(r.stage)), logger.String("to", string(next)))
	r.stage = next
	r.stageStart = now
}

func (r *run) fail(err error) error {
	return errs.Wrap(fmt.Sprintf("service.Generate[%s]", r.stage), err)
}

// Generate runs the full pipeline for the track stored under key in the
// input bucket: fetch, analyze, classify, build the prompt, generate the
// image and, in upload mode, store it and presign a link. Any failure aborts
// the run; nothing is retried and a failed generation is never uploaded.
func (s *Service) Generate(ctx context.Context, key string) (*model.GenerationResult, error) {
	now := s.now()
	id := s.newID()
	r := &run{
		id:         id,
		key:        key,
		stage:      model.StageReceived,
		start:      now,
		stageStart: now,
		rec:        model.GenerationRecord{ID: id, SourceKey: key, CreatedAt: now},
		log:        s.logger.With(logger.String("generation", id), logger.String("key", key)),
	}

	s.inFlight.Add(1)
	metrics.IncGenerationsInFlight()
	defer func() {
		s.inFlight.Add(-1)
		metrics.DecGenerationsInFlight()
	}()

	r.log.Info(ctx, "generation requested")
	res, err := s.generate(ctx, r)
	s.finish(ctx, r, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) generate(ctx context.Context, r *run) (*model.GenerationResult, error) {
	if err := validateKey(r.key); err != nil {
		return nil, r.fail(errs.WrapKind("service.Generate", errs.ErrValidation, err))
	}

	s.advance(ctx, r, model.StageFetching)
	start := s.now()
	data, err := s.store.Fetch(ctx, s.inputBucket, r.key)
	metrics.RecordStorageOperation("fetch", outcome(err), s.now().Sub(start))
	if err != nil {
		return nil, r.fail(err)
	}

	s.advance(ctx, r, model.StageAnalyzing)
	fv, err := s.analyze(ctx, r, data)
	if err != nil {
		return nil, r.fail(err)
	}
	labels, err := s.classifier.Classify(fv)
	if err != nil {
		return nil, r.fail(err)
	}
	r.rec.Labels = labels
	r.rec.Tempo = fv.Tempo
	metrics.RecordLabels(string(labels.Energy), string(labels.Mood))
	metrics.RecordTempo(fv.Tempo)

	s.advance(ctx, r, model.StagePromptBuilt)
	text, err := s.synth.Synthesize(labels, fv.Tempo)
	if err != nil {
		return nil, r.fail(err)
	}
	r.rec.Prompt = text

	s.advance(ctx, r, model.StageGenerating)
	seed := s.seeds.Seed()
	r.rec.Seed = seed
	start = s.now()
	img, err := s.generator.Generate(ctx, imagegen.Request{
		Prompt:        text,
		Width:         s.imageSize,
		Height:        s.imageSize,
		GuidanceScale: s.guidanceScale,
		Seed:          seed,
	})
	metrics.RecordImageGeneration(outcome(err), s.now().Sub(start))
	if err != nil {
		return nil, r.fail(err)
	}
	if len(img) == 0 {
		return nil, r.fail(errs.WrapKind("service.Generate", errs.ErrRemote, imagegen.ErrNoImage))
	}

	res := &model.GenerationResult{
		ID:        r.id,
		SourceKey: r.key,
		Features:  fv,
		Labels:    labels,
		Prompt:    text,
		Seed:      seed,
		CreatedAt: r.start,
	}
	if s.outputMode == OutputInline {
		res.ImageBase64 = base64.StdEncoding.EncodeToString(img)
		return res, nil
	}

	s.advance(ctx, r, model.StageUploading)
	outKey := OutputKey(r.key, s.now(), r.id)
	start = s.now()
	err = s.store.Store(ctx, s.outputBucket, outKey, img, "image/png")
	metrics.RecordStorageOperation("store", outcome(err), s.now().Sub(start))
	if err != nil {
		return nil, r.fail(err)
	}
	url, err := s.store.Presign(ctx, s.outputBucket, outKey, s.urlTTL)
	if err != nil {
		return nil, r.fail(err)
	}
	res.ImageKey = outKey
	res.ImageURL = url
	r.rec.ImageKey = outKey
	return res, nil
}

// analyze spools data to a scratch file, decodes it and extracts features.
// The scratch file is removed on every path.
func (s *Service) analyze(ctx context.Context, r *run, data []byte) (model.FeatureVector, error) {
	const op = "service.analyze"
	head := data[:min(len(data), 12)]
	format, err := audio.DetectFormat(r.key, head)
	if err != nil {
		return model.FeatureVector{}, err
	}

	f, err := os.CreateTemp(s.scratchDir, "levitate-*."+string(format))
	if err != nil {
		return model.FeatureVector{}, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("create scratch file: %w", err))
	}
	scratch := f.Name()
	defer func() {
		if rmErr := os.Remove(scratch); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.log.Warn(ctx, "removing scratch file failed", logger.String("path", scratch), logger.Error(rmErr))
		}
	}()

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		return model.FeatureVector{}, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("write scratch file: %w", errors.Join(werr, cerr)))
	}

	sig, err := audio.DecodeFile(scratch)
	if err != nil {
		return model.FeatureVector{}, err
	}
	metrics.RecordAudioDuration(sig.Duration())
	return s.extractor.Extract(ctx, sig)
}

// finish updates counters, logs the outcome and records history.
func (s *Service) finish(ctx context.Context, r *run, res *model.GenerationResult, err error) {
	reached := r.stage
	terminal := model.StageCompleted
	if err != nil {
		terminal = model.StageFailed
	}
	s.advance(ctx, r, terminal)

	took := s.now().Sub(r.start)
	rec := r.rec
	rec.Stage = reached
	rec.Outcome = terminal
	rec.Duration = took

	s.generations.Add(1)
	if err != nil {
		s.generationsFailed.Add(1)
		rec.Error = err.Error()
		metrics.RecordGeneration(string(model.StageFailed))
		metrics.RecordError("generate", errs.KindName(err))
		r.log.Error(ctx, "generation failed",
			logger.String("stage", string(reached)),
			logger.String("kind", errs.KindName(err)),
			logger.Duration("took", took),
			logger.Error(err),
		)
	} else {
		metrics.RecordGeneration(string(model.StageCompleted))
		r.log.Info(ctx, "generation completed",
			logger.String("energy", string(res.Labels.Energy)),
			logger.String("mood", string(res.Labels.Mood)),
			logger.Float64("tempo", res.Features.Tempo),
			logger.Int64("seed", res.Seed),
			logger.String("imageKey", res.ImageKey),
			logger.Duration("took", took),
		)
	}

	if s.history == nil {
		return
	}
	if herr := s.history.Record(context.WithoutCancel(ctx), rec); herr != nil {
		r.log.Warn(ctx, "recording history failed", logger.Error(herr))
	}
}

// OutputKey names a generated image after its source track:
// <base>-<UTC yyyymmddThhmmss>-<first 8 hex of id>.png.
func OutputKey(sourceKey string, at time.Time, id string) string {
	base := path.Base(sourceKey)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "track"
	}
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s-%s-%s.png", base, at.UTC().Format(outputKeyTime), suffix)
}
