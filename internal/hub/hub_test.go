package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	upserts []statusMessage
	connIDs []string
	closed  []string
}

func (r *recordingSink) Upsert(deviceID, connectionID string, isOpen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, statusMessage{DeviceID: deviceID, IsOpen: isOpen})
	r.connIDs = append(r.connIDs, connectionID)
	return nil
}

func (r *recordingSink) MarkClosedByConnection(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, connectionID)
	return nil
}

func (r *recordingSink) snapshot() ([]statusMessage, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusMessage(nil), r.upserts...),
		append([]string(nil), r.connIDs...),
		append([]string(nil), r.closed...)
}

func dialTestHub(t *testing.T) (*Hub, *recordingSink, *websocket.Conn) {
	t.Helper()
	sink := &recordingSink{}
	h := New(sink)
	go h.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return h, sink, conn
}

func TestClientReceivesBroadcast(t *testing.T) {
	h, _, conn := dialTestHub(t)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, h.SendToAll("bin_update", map[string]any{"fillLevel": 42.0}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "bin_update", ev.Name)
}

func TestStatusFrameUpsertsSession(t *testing.T) {
	h, sink, conn := dialTestHub(t)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(statusMessage{DeviceID: "phone-1", IsOpen: true}))

	require.Eventually(t, func() bool {
		upserts, _, _ := sink.snapshot()
		return len(upserts) == 1
	}, time.Second, 10*time.Millisecond)

	upserts, connIDs, _ := sink.snapshot()
	assert.Equal(t, "phone-1", upserts[0].DeviceID)
	assert.True(t, upserts[0].IsOpen)
	assert.NotEmpty(t, connIDs[0], "connection id is transport-assigned")
}

func TestDisconnectMarksSessionClosed(t *testing.T) {
	h, sink, conn := dialTestHub(t)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		_, _, closed := sink.snapshot()
		return len(closed) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.ClientCount())
}

func TestStatusFrameWithoutDeviceIsIgnored(t *testing.T) {
	h, sink, conn := dialTestHub(t)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(statusMessage{IsOpen: true}))
	require.NoError(t, h.SendToAll("ping", nil)) // fence: round-trip something

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	upserts, _, _ := sink.snapshot()
	assert.Empty(t, upserts)
}
