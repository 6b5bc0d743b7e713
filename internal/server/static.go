package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// SPAHandler serves a built front-end bundle from disk and falls back to
// index.html for any extensionless path that doesn't match a static file,
// enabling SPA client-side routing while returning 404 for missing files
// with extensions.
type SPAHandler struct {
	fileServer http.Handler
	filesystem fs.FS
}

// NewSPAHandler creates a handler serving the bundle in dir. The bundle is
// produced by an external front-end build, so dir must already contain an
// index.html.
func NewSPAHandler(dir string) (*SPAHandler, error) {
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return nil, fmt.Errorf("front-end bundle not found in %s: %w", dir, err)
	}
	filesystem := os.DirFS(dir)
	return &SPAHandler{
		fileServer: http.FileServer(http.FS(filesystem)),
		filesystem: filesystem,
	}, nil
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if urlPath == "/" {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	// Check if the file exists using fs.Stat (avoids opening file content)
	filePath := urlPath[1:]
	if _, err := fs.Stat(h.filesystem, filePath); err == nil {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	// File not found: only serve the SPA fallback for extensionless paths.
	// Paths with extensions (e.g., .css, .js, .png) are real file requests
	// and should return 404 to avoid MIME-type mismatches.
	// Note: r.URL.Path is already URL-decoded by Go's HTTP server, so
	// URL-encoded extensions (e.g., %2Ecss) are correctly detected.
	if path.Ext(urlPath) != "" {
		http.NotFound(w, r)
		return
	}

	// SPA fallback: serve index.html for client-side routing
	r.URL.Path = "/"
	h.fileServer.ServeHTTP(w, r)
}
