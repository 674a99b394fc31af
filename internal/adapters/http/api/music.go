package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/logger"
)

// MusicHandler lists stored tracks and hands out playback links.
type MusicHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewMusicHandler creates a new music handler.
func NewMusicHandler(deps Dependencies, log logger.Logger) *MusicHandler {
	return &MusicHandler{deps: deps, log: log}
}

// HandleList handles GET /music. A listing failure still answers with an
// empty file list next to the error text.
func (h *MusicHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	objs, err := h.deps.ListMusic(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "listing music failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.MusicList{Files: []types.MusicFile{}, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.NewMusicList(objs))
}

// HandlePlay handles GET /music/play/{key...}.
func (h *MusicHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	link, err := h.deps.PlaybackURL(r.Context(), wildcardKey(r))
	if err != nil {
		writeFailure(r.Context(), h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PlaybackResponse{URL: link})
}

// wildcardKey returns the object key captured by a trailing "*" route.
// chi matches on the raw path when the request carried one, so the
// capture is unescaped in that case only.
func wildcardKey(r *http.Request) string {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return key
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}
