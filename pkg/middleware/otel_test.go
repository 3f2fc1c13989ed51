package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// remoteParent returns a context carrying a valid remote span context, so
// even the no-op global tracer hands out spans with a valid context.
func remoteParent(t *testing.T) (context.Context, trace.TraceID) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(context.Background(), sc), traceID
}

func TestOpenTelemetry_PropagatesSpanToHandler(t *testing.T) {
	parent, traceID := remoteParent(t)

	extractorCalled := false
	var seen trace.Span

	r := chi.NewRouter()
	r.Use(OpenTelemetry(
		WithTracerName("test"),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			extractorCalled = true
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	r.Get("/target.pdf", func(w http.ResponseWriter, r *http.Request) {
		seen = SpanFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/target.pdf", nil).WithContext(parent)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, extractorCalled)
	require.NotNil(t, seen)
	assert.Equal(t, traceID, seen.SpanContext().TraceID())
}

func TestOpenTelemetry_FilterSkipsTracing(t *testing.T) {
	parent, _ := remoteParent(t)

	nextCalled := false
	h := OpenTelemetry(
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		assert.Equal(t, parent, r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(parent)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, nextCalled)
}

func TestOpenTelemetry_ServerErrorStillServes(t *testing.T) {
	h := OpenTelemetry(WithIncludeRoute(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestSpanFromContext_NoSpan(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
}
