package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/audio"
	types "github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
	"github.com/okian/levitate/pkg/metrics"
)

// Upload validates and stores a track under its base file name in the input
// bucket. declared is the size reported by the client, or -1 if unknown.
// Validation failures never reach the store.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader, declared int64) (types.UploadResult, error) {
	const op = "service.Upload"

	key, err := uploadKey(filename)
	if err != nil {
		metrics.RecordUpload("rejected")
		return types.UploadResult{}, errs.WrapKind(op, errs.ErrValidation, err)
	}
	ext := strings.ToLower(path.Ext(key))
	if !slices.Contains(s.allowedExt, ext) {
		metrics.RecordUpload("rejected")
		return types.UploadResult{}, errs.WrapKind(op, errs.ErrValidation,
			fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedExtension, ext, strings.Join(s.allowedExt, ", ")))
	}
	if declared > s.maxUploadBytes {
		metrics.RecordUpload("rejected")
		return types.UploadResult{}, errs.WrapKind(op, errs.ErrValidation,
			fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, declared, s.maxUploadBytes))
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		metrics.RecordUpload("error")
		return types.UploadResult{}, errs.WrapKind(op, errs.ErrValidation, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > s.maxUploadBytes {
		metrics.RecordUpload("rejected")
		return types.UploadResult{}, errs.WrapKind(op, errs.ErrValidation,
			fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxUploadBytes))
	}

	contentType := "application/octet-stream"
	if f, ok := audio.FormatFromName(key); ok {
		contentType = f.ContentType()
	}

	start := s.now()
	err = s.store.Store(ctx, s.inputBucket, key, data, contentType)
	metrics.RecordStorageOperation("store", outcome(err), s.now().Sub(start))
	if err != nil {
		metrics.RecordUpload("error")
		metrics.RecordError("upload", errs.KindName(err))
		s.logger.Error(ctx, "upload failed", logger.String("key", key), logger.Error(err))
		return types.UploadResult{}, errs.Wrap(op, err)
	}

	s.uploads.Add(1)
	metrics.RecordUpload("ok")
	metrics.RecordUploadBytes(int64(len(data)))
	s.logger.Info(ctx, "track uploaded",
		logger.String("key", key),
		logger.Int("bytes", len(data)),
		logger.Duration("took", time.Since(start)),
	)
	return types.UploadResult{Key: key, Size: int64(len(data))}, nil
}

// uploadKey reduces a client-supplied file name to a safe base name.
func uploadKey(filename string) (string, error) {
	name := strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/")
	name = path.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, filename)
	}
	return name, nil
}

// validateKey rejects keys that could escape the bucket namespace.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || slices.Contains(strings.Split(key, "/"), "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
