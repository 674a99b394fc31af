package service

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/storage"
	types "github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/metrics"
)

// ListMusic returns the playable tracks in the input bucket, newest first.
func (s *Service) ListMusic(ctx context.Context) ([]model.AudioObject, error) {
	start := s.now()
	objs, err := s.store.List(ctx, s.inputBucket)
	metrics.RecordStorageOperation("list", outcome(err), s.now().Sub(start))
	if err != nil {
		metrics.RecordError("music", errs.KindName(err))
		return nil, errs.Wrap("service.ListMusic", err)
	}

	objs = storage.FilterByExtension(objs, s.allowedExt)
	storage.SortNewestFirst(objs)
	out := make([]model.AudioObject, len(objs))
	for i, o := range objs {
		out[i] = model.AudioObject{Key: o.Key, Size: o.Size, LastModified: o.LastModified}
	}
	return out, nil
}

// PlaybackURL presigns a short-lived link to a track.
func (s *Service) PlaybackURL(ctx context.Context, key string) (string, error) {
	const op = "service.PlaybackURL"
	if err := validateKey(key); err != nil {
		return "", errs.WrapKind(op, errs.ErrValidation, err)
	}
	start := s.now()
	url, err := s.store.Presign(ctx, s.inputBucket, key, s.playbackTTL)
	metrics.RecordStorageOperation("presign", outcome(err), s.now().Sub(start))
	if err != nil {
		return "", errs.Wrap(op, err)
	}
	return url, nil
}

// OpenSigned verifies a signed link and returns the object it grants. Only
// the input and output buckets are reachable. Signature failures wrap
// storage.ErrSignatureInvalid or storage.ErrLinkExpired.
func (s *Service) OpenSigned(ctx context.Context, bucket, key, expires, sig string) (types.SignedObject, error) {
	const op = "service.OpenSigned"
	if bucket != s.inputBucket && bucket != s.outputBucket {
		return types.SignedObject{}, errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket))
	}
	if err := validateKey(key); err != nil {
		return types.SignedObject{}, errs.WrapKind(op, errs.ErrValidation, err)
	}
	if err := s.signer.Verify(bucket, key, expires, sig); err != nil {
		return types.SignedObject{}, errs.WrapKind(op, errs.ErrValidation, err)
	}

	start := s.now()
	data, err := s.store.Fetch(ctx, bucket, key)
	metrics.RecordStorageOperation("fetch", outcome(err), s.now().Sub(start))
	if err != nil {
		return types.SignedObject{}, errs.Wrap(op, err)
	}
	return types.SignedObject{Data: data, ContentType: contentTypeFor(key)}, nil
}

// History returns recent generation records, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]model.GenerationRecord, error) {
	if s.history == nil {
		return nil, errs.WrapKind("service.History", errs.ErrNotFound, ErrHistoryDisabled)
	}
	recs, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, errs.Wrap("service.History", err)
	}
	return recs, nil
}

func contentTypeFor(key string) string {
	if f, ok := audio.FormatFromName(key); ok {
		return f.ContentType()
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
