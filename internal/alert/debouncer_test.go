package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerFiresOncePerExcursion(t *testing.T) {
	d := NewDebouncer(80)

	levels := []float64{50, 81, 85, 99, 70, 80, 90, 60}
	var fired []bool
	for _, l := range levels {
		fired = append(fired, d.Observe(l))
	}

	// One alert at the start of each run at or above 80, nothing else.
	assert.Equal(t, []bool{false, true, false, false, false, true, false, false}, fired)
}

func TestDebouncerStaysQuietBelowThreshold(t *testing.T) {
	d := NewDebouncer(80)
	for _, l := range []float64{0, 10, 79.9, 50, 79} {
		assert.False(t, d.Observe(l))
	}
}

func TestDebouncerResetIsIdempotent(t *testing.T) {
	d := NewDebouncer(80)

	assert.True(t, d.Observe(95))
	assert.False(t, d.Observe(40))
	assert.False(t, d.Observe(30))
	assert.True(t, d.Observe(80), "boundary value re-fires after reset")
}

func TestDebouncerDefaultThreshold(t *testing.T) {
	d := NewDebouncer(0)
	assert.Equal(t, DefaultThreshold, d.Threshold())
	assert.False(t, d.Observe(79.9))
	assert.True(t, d.Observe(80))
}
