package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/levitate/internal/app"
	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

// multipartOverhead is the slack allowed on top of the track size for
// multipart boundaries and part headers.
const multipartOverhead = 64 << 10

// UploadHandler handles track uploads.
type UploadHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps Dependencies, log logger.Logger) *UploadHandler {
	return &UploadHandler{deps: deps, log: log}
}

// HandleUpload handles POST /upload with the track in multipart field "file".
// Oversized bodies are cut off by the reader before anything is stored.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := h.deps.MaxUploadBytes()
	tooLarge := errs.WrapKind("api.Upload", errs.ErrValidation,
		fmt.Errorf("%w: body exceeds %d bytes", service.ErrTooLarge, limit))
	if r.ContentLength > limit+multipartOverhead {
		writeFailure(ctx, h.log, w, tooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFailure(ctx, h.log, w, tooLarge)
			return
		}
		writeFailure(ctx, h.log, w, errs.WrapKind("api.Upload", errs.ErrValidation, fmt.Errorf("%w: %w", ErrBadBody, err)))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(ctx, h.log, w, errs.WrapKind("api.Upload", errs.ErrValidation, ErrMissingFile))
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.deps.Upload(ctx, header.Filename, file, header.Size)
	if err != nil {
		writeFailure(ctx, h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.UploadResponse{
		Status: "uploaded",
		Key:    res.Key,
		S3Key:  res.Key,
		Size:   res.Size,
	})
}
