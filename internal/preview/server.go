package preview

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/typlive/typlive/internal/config"
	"github.com/typlive/typlive/internal/errors"
	"github.com/typlive/typlive/internal/notify"
	"github.com/typlive/typlive/pkg/middleware"
)

// ServerOptions configures the preview server.
type ServerOptions struct {
	// Config is the server configuration.
	Config *config.Config

	// Logger receives server logs. Defaults to slog.Default().
	Logger *slog.Logger

	// OnBuildComplete is called when a build completes.
	OnBuildComplete func(result BuildResult)

	// OnReload is called after the change signal fired, with its generation.
	OnReload func(generation uint64)
}

// Server is the preview server. It owns the change signal, the compiler,
// the watcher and the HTTP surface.
type Server struct {
	config   *config.Config
	options  ServerOptions
	logger   *slog.Logger
	signal   *notify.Signal
	compiler *Compiler
	watcher  *Watcher
	reload   *ReloadServer
	artifact *ArtifactHandler
	changeCh chan []Change

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	listener   net.Listener
	httpServer *http.Server
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewServer creates a new preview server.
func NewServer(options ServerOptions) *Server {
	cfg := options.Config
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	signal := notify.NewSignal()

	var compiler *Compiler
	var exclude []string
	if !cfg.NoRecompile {
		compiler = NewCompiler(CompilerConfig{
			Command: cfg.Compiler.Command,
			Input:   cfg.Filename,
			Output:  cfg.ArtifactPath(),
			Args:    cfg.Compiler.Args,
		})
		// Writing the artifact must not trigger another compile.
		exclude = append(exclude, cfg.ArtifactPath())
	}

	ignore := append(append([]string{}, DefaultIgnore...), cfg.Ignore...)
	watcher := NewWatcher(WatcherConfig{
		Paths:    CollectWatchPaths(cfg),
		Ignore:   ignore,
		Exclude:  exclude,
		Debounce: 100 * time.Millisecond,
		Logger:   logger,
	})

	sessionConfig := SessionConfig{
		MaxBrokenPipes: cfg.Session.MaxBrokenPipes,
		WriteTimeout:   cfg.WriteTimeout(),
	}

	return &Server{
		config:   cfg,
		options:  options,
		logger:   logger.With("component", "server"),
		signal:   signal,
		compiler: compiler,
		watcher:  watcher,
		reload:   NewReloadServer(signal, sessionConfig, logger),
		artifact: NewArtifactHandler(cfg.ArtifactPath(), logger),
		changeCh: make(chan []Change, 64),
		ready:    make(chan struct{}),
	}
}

// Signal returns the change signal sessions wait on.
func (s *Server) Signal() *notify.Signal {
	return s.signal
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// The WebSocket route stays outside the instrumented group so the
	// hijacked connection is not wrapped.
	r.Get("/listen", s.reload.HandleWebSocket)

	r.Group(func(r chi.Router) {
		if !s.config.DisableMetrics {
			r.Use(middleware.Prometheus())
		}
		r.Use(middleware.OpenTelemetry(
			middleware.WithRequestFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz"
			}),
		))

		r.Method(http.MethodGet, "/", LandingHandler(s.config.Address, s.port()))
		r.Method(http.MethodGet, "/target.pdf", s.artifact)
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("ok"))
		})
	})

	if !s.config.DisableMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	return r
}

// Recompile runs the compiler once and fires the change signal on success.
// With recompilation disabled it only fires the signal.
func (s *Server) Recompile(ctx context.Context) error {
	if s.compiler == nil {
		s.notify()
		return nil
	}

	s.logger.Debug("compiling", "input", s.config.Filename)
	result := s.compiler.Build(ctx)

	if s.options.OnBuildComplete != nil {
		s.options.OnBuildComplete(result)
	}

	if !result.Success {
		s.logger.Error("compilation failed", "error", result.Error, "output", result.Output)
		return result.Error
	}

	s.logger.Info("compiled", "output", s.compiler.OutputPath(), "duration", result.Duration.Round(time.Millisecond))
	s.notify()
	return nil
}

func (s *Server) notify() {
	s.signal.Notify()
	gen := s.signal.Generation()
	s.logger.Debug("change signal fired", "generation", gen, "clients", s.reload.ClientCount())
	if s.options.OnReload != nil {
		s.options.OnReload(gen)
	}
}

// Start binds the listener, performs the initial compile, starts the
// watcher and serves until ctx is cancelled, Stop is called or the server
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()
	s.reload.reopen()

	ln, err := net.Listen("tcp", s.config.ServeAddress())
	if err != nil {
		s.Stop()
		return errors.New("T120").
			WithDetail("Cannot listen on " + s.config.ServeAddress()).
			WithSuggestion("Pick another port with --port").
			Wrap(err)
	}

	// Initial build. A broken document still gets served so the user can
	// fix it while watching.
	if s.compiler != nil {
		_ = s.Recompile(ctx)
	}

	s.watcher.OnChange(func(changes []Change) {
		select {
		case s.changeCh <- changes:
		default:
			// A batch is already queued; it will compile the latest sources.
		}
	})

	go func() {
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Error("watcher stopped", "error", err)
		}
	}()
	go s.processChanges(ctx)

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	// The landing page needs the bound port, which differs from the
	// configured one when port 0 was requested.
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("serving", "url", "http://"+ln.Addr().String(), "artifact", s.artifact.Path())

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		if err != nil {
			return errors.New("T120").Wrap(err)
		}
		return nil
	}
}

// port returns the bound port once listening, the configured port before.
func (s *Server) port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}

// Ready is closed the first time the server accepts connections. Start may
// run again after Stop; Ready stays closed.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down: watcher first, then all sessions, then the
// HTTP server with a five second grace period.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	s.watcher.Stop()
	s.reload.Close()
	if s.cancel != nil {
		s.cancel()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	s.httpServer = nil
	s.listener = nil
}

// processChanges serializes change handling and coalesces bursts.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case changes := <-s.changeCh:
			draining := true
			for draining {
				select {
				case next := <-s.changeCh:
					changes = append(changes, next...)
				default:
					draining = false
				}
			}
			s.handleChanges(ctx, changes)
		}
	}
}

// handleChanges handles a batch of file changes with one recompile.
func (s *Server) handleChanges(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}
	for _, change := range changes {
		s.logger.Debug("changed", "path", change.Path, "type", change.Type)
	}

	if err := s.Recompile(ctx); err != nil && ctx.Err() == nil {
		s.logger.Debug("keeping previous artifact")
	}
}
