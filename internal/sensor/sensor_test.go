package sensor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mochiTCPPort = 18930

type recordingHandler struct {
	mu      sync.Mutex
	samples []float64
}

func (h *recordingHandler) HandleSample(ts int64, powerW float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, powerW)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

type recordingHub struct {
	mu     sync.Mutex
	events []any
}

func (h *recordingHub) Broadcast(event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, payload)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnMessage(t *testing.T) {
	handler := &recordingHandler{}
	hub := &recordingHub{}
	i := New(Config{}, handler, hub, discardLogger())

	// Power sample: broadcast plus handler.
	i.onMessage("bike/telemetry/power", []byte(`{"instantaneousPower": 215}`))
	assert.Equal(t, 1, handler.count())
	assert.Equal(t, 1, hub.count())

	// Cadence-only event: passthrough but no power sample.
	i.onMessage("bike/telemetry/fe", []byte(`{"cadence": 90}`))
	assert.Equal(t, 1, handler.count())
	assert.Equal(t, 2, hub.count())

	// Malformed payload: dropped silently.
	i.onMessage("bike/telemetry/power", []byte(`garbage`))
	assert.Equal(t, 1, handler.count())
	assert.Equal(t, 2, hub.count())
}

func TestOnMessageTimestampsFromClock(t *testing.T) {
	handler := &recordingHandler{}
	hub := &recordingHub{}
	i := New(Config{}, handler, hub, discardLogger())

	fixed := time.UnixMilli(1_700_000_000_000)
	i.now = func() time.Time { return fixed }

	i.onMessage("bike/telemetry/power", []byte(`{"Power": 100}`))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	ev := hub.events[0].(telemetryEvent)
	assert.Equal(t, fixed.UnixMilli(), ev.TS)
	assert.Equal(t, "power", ev.Channel)
}

func TestIngestAgainstBroker(t *testing.T) {
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", mochiTCPPort),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	handler := &recordingHandler{}
	hub := &recordingHub{}
	ingest := New(Config{
		BrokerURL: fmt.Sprintf("mqtt://localhost:%d", mochiTCPPort),
		Topic:     "bike/telemetry/#",
		ClientID:  "wattbridge-test",
	}, handler, hub, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, ingest.Start(ctx))
	t.Cleanup(func() { ingest.Close(context.Background()) })
	require.NoError(t, ingest.AwaitConnection(ctx))

	// Give the subscription a moment to land after connect.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, server.Publish("bike/telemetry/power",
		[]byte(`{"instantaneousPower": 215, "cadence": 88}`), false, 0))

	require.Eventually(t, func() bool { return handler.count() == 1 },
		5*time.Second, 20*time.Millisecond, "power sample should reach the handler")

	handler.mu.Lock()
	assert.Equal(t, 215.0, handler.samples[0])
	handler.mu.Unlock()

	assert.GreaterOrEqual(t, hub.count(), 1)
}
