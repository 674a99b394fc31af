package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

func subFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Only fails for an invalid path; expose the raw FS instead.
		return staticFS
	}
	return sub
}

// FS returns an http.FileSystem for the embedded frontend assets.
func FS() http.FileSystem {
	return http.FS(subFS())
}
