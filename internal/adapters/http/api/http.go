// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/levitate/internal/app"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the pipeline implementation.
type Dependencies interface {
	Upload(ctx context.Context, filename string, r io.Reader, declared int64) (types.UploadResult, error)
	Generate(ctx context.Context, key string) (*model.GenerationResult, error)
	ListMusic(ctx context.Context) ([]model.AudioObject, error)
	PlaybackURL(ctx context.Context, key string) (string, error)
	OpenSigned(ctx context.Context, bucket, key, expires, sig string) (types.SignedObject, error)
	History(ctx context.Context, limit int) ([]model.GenerationRecord, error)

	// MaxUploadBytes caps the size of an uploaded track.
	MaxUploadBytes() int64
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	uploadHandler      *UploadHandler
	generateHandler    *GenerateHandler
	musicHandler       *MusicHandler
	objectsHandler     *ObjectsHandler
	generationsHandler *GenerationsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	log := logger.Named("api")
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		uploadHandler:      NewUploadHandler(deps, log),
		generateHandler:    NewGenerateHandler(deps, log),
		musicHandler:       NewMusicHandler(deps, log),
		objectsHandler:     NewObjectsHandler(deps, log),
		generationsHandler: NewGenerationsHandler(deps, log),
	}
}

// Register attaches all HTTP routes to r. Business routes are served both
// at the root and under /api.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/objects/{bucket}/*", MetricsMiddleware(s.objectsHandler.HandleGetObject, "objects"))

	s.routes(r)
	r.Route("/api", func(sub chi.Router) {
		sub.Get("/status", MetricsMiddleware(s.healthHandler.HandleStatus, "status"))
		s.routes(sub)
	})
}

func (s *Server) routes(r chi.Router) {
	r.Post("/upload", MetricsMiddleware(s.uploadHandler.HandleUpload, "upload"))
	r.Post("/generate", MetricsMiddleware(s.generateHandler.HandleGenerate, "generate"))
	r.Get("/music", MetricsMiddleware(s.musicHandler.HandleList, "music"))
	r.Get("/music/play/*", MetricsMiddleware(s.musicHandler.HandlePlay, "music_play"))
	r.Get("/generations", MetricsMiddleware(s.generationsHandler.HandleList, "generations"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}

// writeFailure maps a pipeline error to a status and logs it with full
// detail. Validation is the only client-facing kind; everything else,
// including a missing source track, is a 500.
func writeFailure(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("kind", errs.KindName(err)), logger.Error(err))
	} else {
		log.Warn(ctx, "request rejected", logger.String("kind", errs.KindName(err)), logger.Error(err))
	}
	writeError(w, status, errs.KindName(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
