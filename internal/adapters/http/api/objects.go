package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

// ObjectsHandler serves objects behind HMAC-signed links.
type ObjectsHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewObjectsHandler creates a new signed download handler.
func NewObjectsHandler(deps Dependencies, log logger.Logger) *ObjectsHandler {
	return &ObjectsHandler{deps: deps, log: log}
}

// HandleGetObject handles GET /objects/{bucket}/{key...}?expires=&sig=.
// It answers 403 for a bad or expired signature and 404 for a missing
// object or bucket.
func (h *ObjectsHandler) HandleGetObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	obj, err := h.deps.OpenSigned(ctx, chi.URLParam(r, "bucket"), wildcardKey(r), q.Get("expires"), q.Get("sig"))
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrSignatureInvalid), errors.Is(err, storage.ErrLinkExpired):
		h.log.Warn(ctx, "signed link refused", logger.Error(err))
		writeError(w, http.StatusForbidden, "forbidden", err)
		return
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, errs.KindName(err), err)
		return
	default:
		writeFailure(ctx, h.log, w, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
