package preview

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactHandler_ServesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	content := []byte("%PDF-1.7\n%binary\x00\xff")
	require.NoError(t, os.WriteFile(path, content, 0644))

	rec := httptest.NewRecorder()
	NewArtifactHandler(path, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/target.pdf", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestArtifactHandler_MissingFileIsEmptyOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.pdf")

	rec := httptest.NewRecorder()
	NewArtifactHandler(path, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/target.pdf", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestArtifactHandler_ReadsFreshContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.pdf")
	h := NewArtifactHandler(path, nil)

	for _, version := range []string{"%PDF v1", "%PDF v2"} {
		require.NoError(t, os.WriteFile(path, []byte(version), 0644))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/target.pdf", nil))
		assert.Equal(t, version, rec.Body.String())
	}
}

func TestLandingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LandingHandler("127.0.0.1", 8080).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "127.0.0.1")
	assert.Contains(t, body, "8080")
	assert.NotContains(t, body, "{addr}")
	assert.NotContains(t, body, "{port}")
}

func TestRenderLanding(t *testing.T) {
	page := RenderLanding("0.0.0.0", 5599)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, `var addr = "0.0.0.0";`)
	assert.Contains(t, page, `var port = "5599";`)
	assert.Contains(t, page, "/listen")
	assert.Contains(t, page, "/target.pdf")
	assert.Contains(t, page, `"refresh"`)
}
