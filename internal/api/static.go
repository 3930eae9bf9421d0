package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yegors/co-subtitles/pkg/logger"
)

// StaticFileHandler serves the browser frontend without caching, so a page
// reload always picks up an edited script
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a handler for files under staticDir
func NewStaticFileHandler(staticDir string, log *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(staticDir)
	if err != nil {
		root = staticDir
	}
	return &StaticFileHandler{
		root:   root,
		logger: log.Named("static-handler"),
	}
}

// resolve maps a URL path to a file under root and an HTTP status.
// Directories resolve to their index.html.
func (h *StaticFileHandler) resolve(urlPath string) (string, int) {
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	full := filepath.Join(h.root, filepath.FromSlash(rel))

	if r, err := filepath.Rel(h.root, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", http.StatusForbidden
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", http.StatusNotFound
		}
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
		return "", http.StatusInternalServerError
	}
	if info.IsDir() {
		index := filepath.Join(full, "index.html")
		if _, err := os.Stat(index); err != nil {
			return "", http.StatusForbidden
		}
		full = index
	}
	return full, http.StatusOK
}

// ServeHTTP serves one file
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	file, status := h.resolve(r.URL.Path)
	switch status {
	case http.StatusOK:
	case http.StatusForbidden:
		h.logger.Warn("Refused static path", logger.String("requested_path", r.URL.Path))
		http.Error(w, "Forbidden", status)
		return
	case http.StatusNotFound:
		http.NotFound(w, r)
		return
	default:
		http.Error(w, "Internal Server Error", status)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	h.logger.Debug("Serving static file",
		logger.String("requested_path", r.URL.Path),
		logger.String("file_path", file))
	http.ServeFile(w, r, file)
}
