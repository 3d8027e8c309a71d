package ingestion

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/binwatch/internal/alert"
	"github.com/binwatch/internal/mqttclient"
	"github.com/binwatch/internal/telemetry"
)

const mochiPort = 18831

func startBroker(t *testing.T) {
	t.Helper()
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", mochiPort),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })
}

func TestServiceIngestsOverMQTT(t *testing.T) {
	if testing.Short() {
		t.Skip("broker integration test")
	}
	startBroker(t)

	store, err := telemetry.Open(filepath.Join(t.TempDir(), "telemetry.seg"))
	require.NoError(t, err)
	router := &recordingRouter{}
	live := &recordingLive{}
	pipe := NewPipeline(store, alert.NewDebouncer(80), router, live, NewState())

	sub, err := mqttclient.New(mqttclient.Options{
		BrokerURL: fmt.Sprintf("tcp://localhost:%d", mochiPort),
		ClientID:  "binwatchd-test",
	})
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	svc := NewService(sub, pipe, "binwatch/telemetry")
	require.NoError(t, svc.Start())

	pub, err := mqttclient.New(mqttclient.Options{
		BrokerURL: fmt.Sprintf("tcp://localhost:%d", mochiPort),
		ClientID:  "bridge-test",
	})
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	require.NoError(t, pub.Publish("binwatch/telemetry",
		[]byte(`{"fillLevel": 91, "lidOpen": false}`), 0, false))

	require.Eventually(t, func() bool { return store.Len() == 1 },
		3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return router.count() == 1 },
		3*time.Second, 20*time.Millisecond)

	// Malformed payloads are rejected without touching the store.
	require.NoError(t, pub.Publish("binwatch/telemetry", []byte(`{"lidOpen": true}`), 0, false))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, store.Len())
}
