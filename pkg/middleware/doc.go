// Package middleware provides HTTP observability middleware for the preview
// server.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware and recording functions
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts a server span for each request and
// passes it down through the request context.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// # Prometheus Metrics
//
// The Prometheus middleware counts requests by chi route pattern. The
// remaining metrics are fed by the Record functions:
//   - typlive_active_sessions: Connected notification sessions
//   - typlive_refreshes_sent_total: Refresh messages delivered
//   - typlive_send_errors_total: Failed refresh sends by kind
//   - typlive_compiles_total: Compiler runs by result
//   - typlive_compile_duration_seconds: Compiler run duration
//   - typlive_artifact_read_errors_total: Failed artifact reads
//
// Record functions do nothing until Init or Prometheus has been called, so
// code paths that record metrics work unchanged with metrics disabled.
//
//	r.Use(middleware.Prometheus())
//	r.Handle("/metrics", promhttp.Handler())
package middleware
