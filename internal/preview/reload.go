package preview

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/typlive/typlive/internal/errors"
	"github.com/typlive/typlive/pkg/middleware"
)

// maxInboundMessage caps frames read from clients. Clients never send data;
// the limit only has to fit control frames.
const maxInboundMessage = 512

// ReloadServer upgrades browser connections and runs one Session per
// connection. It keeps a registry of live connections for counting and
// shutdown only; refreshes are never delivered through it.
type ReloadServer struct {
	signal   Waiter
	config   SessionConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]context.CancelFunc
	closed  bool
	nextID  atomic.Uint64
	wg      sync.WaitGroup
}

// NewReloadServer creates a new reload server that wakes sessions on signal.
func NewReloadServer(signal Waiter, config SessionConfig, logger *slog.Logger) *ReloadServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadServer{
		signal:  signal,
		config:  config,
		clients: make(map[*websocket.Conn]context.CancelFunc),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local preview; the landing page may be opened via any host name
			},
		},
		logger: logger.With("component", "reload"),
	}
}

// HandleWebSocket handles the WebSocket upgrade and runs the connection's
// session until it ends.
func (r *ReloadServer) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", errors.New("T130").Wrap(err))
		return
	}

	// The session is created before it becomes visible in the registry, so
	// a registered client never misses a later notification.
	id := r.nextID.Add(1)
	logger := r.logger.With("remote", req.RemoteAddr)
	session := NewSession(id, conn, r.signal, r.config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	if !r.register(conn, cancel) {
		cancel()
		conn.Close()
		return
	}
	defer r.wg.Done()
	defer func() {
		r.unregister(conn)
		cancel()
		conn.Close()
	}()

	conn.SetReadLimit(maxInboundMessage)
	go r.readPump(conn, cancel, logger.With("session", id))

	middleware.RecordSessionOpen()
	defer middleware.RecordSessionClose()

	logger.Debug("client connected", "session", id)
	if err := session.Run(ctx); err != nil {
		logger.Debug("session terminated", "session", id, "error", err, "sent", session.Sent())
		return
	}

	// Clean shutdown: tell the client, it may reconnect.
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	logger.Debug("client disconnected", "session", id, "sent", session.Sent())
}

// readPump discards inbound frames so control frames get processed, and
// cancels the session as soon as the connection is closed or broken.
func (r *ReloadServer) readPump(conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("client connection lost", "error", err)
			}
			return
		}
	}
}

func (r *ReloadServer) register(conn *websocket.Conn, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.clients[conn] = cancel
	r.wg.Add(1)
	return true
}

func (r *ReloadServer) unregister(conn *websocket.Conn) {
	r.mu.Lock()
	delete(r.clients, conn)
	r.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (r *ReloadServer) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// reopen accepts connections again after Close.
func (r *ReloadServer) reopen() {
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
}

// Close ends all sessions, waits for them to finish and rejects new
// connections.
func (r *ReloadServer) Close() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.clients {
		cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}
