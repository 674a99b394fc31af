// Package site serves the embedded browser frontend.
package site

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// indexFile is the page served at the root.
const indexFile = "index.html"

// Register attaches the frontend routes to r:
//
//	GET /          -> index.html
//	GET /static/*  -> embedded assets
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	root := NewRootHandler()
	r.Get("/", root.HandleRoot)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(FS())))
}

// RootHandler serves the frontend index page.
type RootHandler struct{}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// HandleRoot handles GET / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, subFS(), indexFile)
}
