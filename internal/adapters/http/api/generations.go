package api

import (
	"errors"
	"net/http"
	"strconv"

	service "github.com/okian/levitate/internal/app"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

const (
	defaultGenerationsLimit = 20
	maxGenerationsLimit     = 100
)

// GenerationsHandler exposes the generation history.
type GenerationsHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewGenerationsHandler creates a new history handler.
func NewGenerationsHandler(deps Dependencies, log logger.Logger) *GenerationsHandler {
	return &GenerationsHandler{deps: deps, log: log}
}

// HandleList handles GET /generations?limit=N. With history disabled it
// answers {"enabled": false} rather than an error.
func (h *GenerationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultGenerationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxGenerationsLimit {
			writeFailure(r.Context(), h.log, w, errs.WrapKind("api.Generations", errs.ErrValidation, ErrBadLimit))
			return
		}
		limit = n
	}

	recs, err := h.deps.History(r.Context(), limit)
	switch {
	case errors.Is(err, service.ErrHistoryDisabled):
		writeJSON(w, http.StatusOK, types.GenerationsResponse{Enabled: false, Generations: []model.GenerationRecord{}})
		return
	case err != nil:
		writeFailure(r.Context(), h.log, w, err)
		return
	}
	if recs == nil {
		recs = []model.GenerationRecord{}
	}
	writeJSON(w, http.StatusOK, types.GenerationsResponse{Enabled: true, Generations: recs})
}
