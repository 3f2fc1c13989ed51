package preview

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typlive/typlive/internal/notify"
)

func newReloadTestServer(t *testing.T) (*ReloadServer, *notify.Signal, string) {
	t.Helper()
	signal := notify.NewSignal()
	reload := NewReloadServer(signal, DefaultSessionConfig(), nil)

	ts := httptest.NewServer(http.HandlerFunc(reload.HandleWebSocket))
	t.Cleanup(func() {
		reload.Close()
		ts.Close()
	})

	return reload, signal, "ws" + strings.TrimPrefix(ts.URL, "http") + "/listen"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRefresh(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, RefreshMessage, string(data))
}

func waitClients(t *testing.T, reload *ReloadServer, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return reload.ClientCount() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestReloadServer_BroadcastsToAllClients(t *testing.T) {
	reload, signal, url := newReloadTestServer(t)

	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, reload, 2)

	signal.Notify()
	readRefresh(t, a)
	readRefresh(t, b)

	signal.Notify()
	readRefresh(t, a)
	readRefresh(t, b)
}

func TestReloadServer_ClientCloseEndsSession(t *testing.T) {
	reload, _, url := newReloadTestServer(t)

	conn := dial(t, url)
	waitClients(t, reload, 1)

	require.NoError(t, conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	))
	conn.Close()

	// No notification needed for the session to notice.
	waitClients(t, reload, 0)
}

func TestReloadServer_IgnoresInboundMessages(t *testing.T) {
	reload, signal, url := newReloadTestServer(t)

	conn := dial(t, url)
	waitClients(t, reload, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	signal.Notify()
	readRefresh(t, conn)
}

func TestReloadServer_CloseEndsSessions(t *testing.T) {
	reload, _, url := newReloadTestServer(t)

	conn := dial(t, url)
	waitClients(t, reload, 1)

	reload.Close()
	assert.Equal(t, 0, reload.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// New connections are refused after Close.
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}

func TestReloadServer_RejectsPlainHTTP(t *testing.T) {
	reload := NewReloadServer(notify.NewSignal(), DefaultSessionConfig(), nil)

	rec := httptest.NewRecorder()
	reload.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/listen", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, reload.ClientCount())
}
