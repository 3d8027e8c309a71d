package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/binwatch/internal/alert"
	"github.com/binwatch/internal/models"
	"github.com/binwatch/internal/notify"
	"github.com/binwatch/internal/telemetry"
)

// ErrInvalidSample marks a malformed or incomplete telemetry payload.
var ErrInvalidSample = errors.New("invalid telemetry sample")

// wireSample is the payload the sensor sends, over MQTT or HTTP. The fill
// level is required; a missing timestamp means "now".
type wireSample struct {
	FillLevel *float64 `json:"fillLevel"`
	LidOpen   bool     `json:"lidOpen"`
	Timestamp int64    `json:"timestamp"`
}

// ParseSample validates and converts a raw telemetry payload.
func ParseSample(data []byte) (models.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if w.FillLevel == nil {
		return models.Sample{}, fmt.Errorf("%w: missing fillLevel", ErrInvalidSample)
	}
	ts := time.Now()
	if w.Timestamp > 0 {
		ts = time.Unix(w.Timestamp, 0)
	}
	return models.Sample{
		FillLevel: *w.FillLevel,
		LidOpen:   w.LidOpen,
		Timestamp: ts,
	}, nil
}

// AlertRouter dispatches a fired alert to the delivery transports.
type AlertRouter interface {
	RouteAlert(sample models.Sample)
}

// Pipeline is the ingest path for one telemetry sample: append to the
// store, publish a live update, evaluate the debouncer, and route the
// alert if it fired. The store append happens before the debouncer is
// advanced, so a storage failure leaves the alert state untouched.
type Pipeline struct {
	store    *telemetry.Store
	debounce *alert.Debouncer
	router   AlertRouter
	live     notify.LiveBroadcast
	state    *State
}

func NewPipeline(store *telemetry.Store, debounce *alert.Debouncer, router AlertRouter, live notify.LiveBroadcast, state *State) *Pipeline {
	return &Pipeline{
		store:    store,
		debounce: debounce,
		router:   router,
		live:     live,
		state:    state,
	}
}

// Ingest runs one sample through the pipeline. Delivery is fire and
// forget: only validation and storage failures are returned.
func (p *Pipeline) Ingest(sample models.Sample) error {
	if err := p.store.Append(sample); err != nil {
		return err
	}
	p.state.SetFillLevel(sample.FillLevel)
	log.Printf("[Ingest] Sample stored: fill=%.1f%% lid=%v", sample.FillLevel, sample.LidOpen)

	update := models.Notification{
		Title:     "Fill level update",
		Body:      fmt.Sprintf("Current fill level: %.0f%%", sample.FillLevel),
		Type:      "bin_update",
		FillLevel: sample.FillLevel,
		Timestamp: sample.Timestamp,
	}
	if err := p.live.SendToAll("bin_update", update); err != nil {
		log.Printf("[Ingest] Live update dropped: %v", err)
	}

	if p.debounce.Observe(sample.FillLevel) {
		log.Printf("[Ingest] Fill level %.1f%% crossed threshold, routing alert", sample.FillLevel)
		go p.router.RouteAlert(sample)
	}
	return nil
}
