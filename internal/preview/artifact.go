package preview

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/typlive/typlive/pkg/middleware"
)

// ArtifactHandler serves the compiled document. A read failure never
// becomes an HTTP error: the browser gets an empty document and the next
// refresh retries.
type ArtifactHandler struct {
	path   string
	logger *slog.Logger
}

// NewArtifactHandler returns a handler that serves the file at path.
func NewArtifactHandler(path string, logger *slog.Logger) *ArtifactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactHandler{
		path:   path,
		logger: logger.With("component", "artifact"),
	}
}

// Path returns the served file.
func (h *ArtifactHandler) Path() string { return h.path }

// ServeHTTP implements http.Handler.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		h.logger.Error("failed to read artifact", "path", h.path, "error", err)
		middleware.RecordArtifactReadError()
		data = nil
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if len(data) > 0 {
		_, _ = w.Write(data)
	}
}
