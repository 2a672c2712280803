package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f map[string]any
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func TestHelloOnConnect(t *testing.T) {
	_, url := testHub(t)
	conn := dial(t, url)

	f := readFrame(t, conn)
	assert.Equal(t, "hello", f["type"])
}

func TestBroadcastReachesAllViewers(t *testing.T) {
	h, url := testHub(t)

	first := dial(t, url)
	second := dial(t, url)
	readFrame(t, first)  // hello
	readFrame(t, second) // hello

	require.Eventually(t, func() bool { return h.Count() == 2 },
		time.Second, 10*time.Millisecond)

	h.Broadcast("telemetry", map[string]any{"power": 215.0})

	for _, conn := range []*websocket.Conn{first, second} {
		f := readFrame(t, conn)
		assert.Equal(t, "telemetry", f["type"])
		data := f["data"].(map[string]any)
		assert.Equal(t, 215.0, data["power"])
	}
}

func TestDisconnectPrunesViewer(t *testing.T) {
	h, url := testHub(t)

	conn := dial(t, url)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return h.Count() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 },
		time.Second, 10*time.Millisecond)

	// Broadcasting into an empty hub is a no-op.
	h.Broadcast("telemetry", nil)
}

func TestSlowViewerIsDropped(t *testing.T) {
	h, url := testHub(t)

	conn := dial(t, url)
	_ = conn // never reads

	require.Eventually(t, func() bool { return h.Count() == 1 },
		time.Second, 10*time.Millisecond)

	// Overflow the per-client queue; the hub must shed the client instead
	// of blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendQueueSize*4; i++ {
			h.Broadcast("telemetry", map[string]int{"seq": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
