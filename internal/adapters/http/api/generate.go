package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

// maxGenerateBody caps the JSON body of POST /generate.
const maxGenerateBody = 16 << 10

// GenerateHandler runs the generation pipeline for a stored track.
type GenerateHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(deps Dependencies, log logger.Logger) *GenerateHandler {
	return &GenerateHandler{deps: deps, log: log}
}

// HandleGenerate handles POST /generate {"key": "..."}.
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.GenerateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxGenerateBody))
	if err := dec.Decode(&req); err != nil {
		writeFailure(ctx, h.log, w, errs.WrapKind("api.Generate", errs.ErrValidation, fmt.Errorf("%w: %w", ErrBadBody, err)))
		return
	}

	res, err := h.deps.Generate(ctx, req.SourceKey())
	if err != nil {
		writeFailure(ctx, h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewGenerateResponse(res))
}
