package alert

import "sync"

// DefaultThreshold is the fill level (percent) at which a bin-full alert
// fires.
const DefaultThreshold = 80.0

// Debouncer suppresses repeated alerts while the fill level stays above
// the threshold. One instance covers the single physical bin; every ingest
// call observes through the same Debouncer.
//
// The state machine has two states: armed (ready to alert) and fired
// (alert already sent for the current excursion). A reading below the
// threshold always re-arms.
type Debouncer struct {
	mu        sync.Mutex
	threshold float64
	fired     bool
}

// NewDebouncer returns an armed debouncer. A threshold <= 0 selects
// DefaultThreshold.
func NewDebouncer(threshold float64) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Debouncer{threshold: threshold}
}

// Observe feeds a fill-level reading through the state machine and reports
// whether an alert should fire for it.
func (d *Debouncer) Observe(fillLevel float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fillLevel < d.threshold {
		d.fired = false
		return false
	}
	if d.fired {
		return false
	}
	d.fired = true
	return true
}

// Threshold returns the configured alert threshold.
func (d *Debouncer) Threshold() float64 {
	return d.threshold
}
