package ingestion

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binwatch/internal/alert"
	"github.com/binwatch/internal/models"
	"github.com/binwatch/internal/telemetry"
)

type recordingRouter struct {
	mu     sync.Mutex
	alerts []models.Sample
}

func (r *recordingRouter) RouteAlert(s models.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, s)
}

func (r *recordingRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type recordingLive struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingLive) SendToAll(event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingLive) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestPipeline(t *testing.T) (*Pipeline, *telemetry.Store, *recordingRouter, *recordingLive) {
	t.Helper()
	store, err := telemetry.Open(filepath.Join(t.TempDir(), "telemetry.seg"))
	require.NoError(t, err)
	router := &recordingRouter{}
	live := &recordingLive{}
	pipe := NewPipeline(store, alert.NewDebouncer(80), router, live, NewState())
	return pipe, store, router, live
}

func TestParseSample(t *testing.T) {
	s, err := ParseSample([]byte(`{"fillLevel": 42.5, "lidOpen": true, "timestamp": 1756623600}`))
	require.NoError(t, err)
	assert.Equal(t, 42.5, s.FillLevel)
	assert.True(t, s.LidOpen)
	assert.Equal(t, time.Unix(1756623600, 0), s.Timestamp)
}

func TestParseSampleDefaultsTimestamp(t *testing.T) {
	before := time.Now()
	s, err := ParseSample([]byte(`{"fillLevel": 10}`))
	require.NoError(t, err)
	assert.False(t, s.Timestamp.Before(before))
}

func TestParseSampleRejectsMissingFillLevel(t *testing.T) {
	_, err := ParseSample([]byte(`{"lidOpen": true}`))
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestParseSampleRejectsBadJSON(t *testing.T) {
	_, err := ParseSample([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestIngestStoresAndBroadcastsUpdate(t *testing.T) {
	pipe, store, router, live := newTestPipeline(t)

	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 40, Timestamp: time.Now()}))

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"bin_update"}, live.names())
	assert.Equal(t, 0, router.count(), "no alert below threshold")
}

func TestIngestRoutesAlertOnceAboveThreshold(t *testing.T) {
	pipe, _, router, _ := newTestPipeline(t)

	now := time.Now()
	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 85, Timestamp: now}))
	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 90, Timestamp: now.Add(time.Second)}))

	require.Eventually(t, func() bool { return router.count() == 1 },
		time.Second, 10*time.Millisecond)

	// Dropping below the threshold re-arms.
	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 20, Timestamp: now.Add(2 * time.Second)}))
	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 88, Timestamp: now.Add(3 * time.Second)}))

	require.Eventually(t, func() bool { return router.count() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestIngestTracksCurrentFillLevel(t *testing.T) {
	pipe, _, _, _ := newTestPipeline(t)

	require.NoError(t, pipe.Ingest(models.Sample{FillLevel: 61.5, Timestamp: time.Now()}))
	assert.Equal(t, 61.5, pipe.state.FillLevel())
}
