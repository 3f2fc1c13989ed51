// Package preview implements the live preview server.
//
// The server compiles a document with an external compiler, serves the
// artifact over HTTP and tells every connected browser to reload it after
// each successful compile.
//
// # Architecture
//
// The package consists of several components:
//
//   - Watcher: reports file changes via fsnotify, debounced and filtered
//     through doublestar ignore globs
//   - Compiler: runs "<command> compile <input> <output>" and reports a BuildResult
//   - Server: wires compiler and watcher to the change signal and serves the
//     HTTP routes
//   - ReloadServer: upgrades WebSocket connections and runs one Session each
//   - Session: waits on the change signal and pushes "refresh" to one client
//
// # Routes
//
//	GET /            landing page embedding the artifact
//	GET /target.pdf  the artifact, never an HTTP error
//	GET /listen      WebSocket refresh notifications
//	GET /healthz     liveness
//	GET /metrics     Prometheus metrics, unless disabled
//
// # Usage
//
//	server := preview.NewServer(preview.ServerOptions{Config: cfg})
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package preview
