package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// spaHandler serves the built frontend. Paths without a matching file fall
// back to index.html so client-side routes like /editor/{id} resolve.
type spaHandler struct {
	dir   string
	files http.Handler
}

func newSPAHandler(dir string) *spaHandler {
	return &spaHandler{
		dir:   dir,
		files: http.FileServer(http.Dir(dir)),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		respondError(w, http.StatusNotFound, "not_found", "endpoint not found")
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		respondError(w, http.StatusNotFound, "not_found", "endpoint not found")
		return
	}

	path := filepath.Join(h.dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
