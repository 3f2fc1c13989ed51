package preview

import (
	_ "embed"
	"net/http"
	"strconv"
	"strings"
)

//go:embed base.html
var baseHTML string

// RenderLanding returns the landing page with the {addr} and {port}
// placeholders replaced.
func RenderLanding(address string, port int) string {
	return strings.NewReplacer(
		"{addr}", address,
		"{port}", strconv.Itoa(port),
	).Replace(baseHTML)
}

// LandingHandler serves a landing page rendered once at construction.
func LandingHandler(address string, port int) http.Handler {
	page := []byte(RenderLanding(address, port))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
}
