package ingestion

import "sync"

// State holds the bin's control flags and the most recent fill level.
// The bin firmware polls these over HTTP, so reads vastly outnumber
// writes.
type State struct {
	mu         sync.RWMutex
	fillLevel  float64
	autoOpen   bool
	manualOpen bool
}

// NewState returns the boot state: empty bin, auto-open enabled.
func NewState() *State {
	return &State{autoOpen: true}
}

func (s *State) FillLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fillLevel
}

func (s *State) SetFillLevel(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillLevel = v
}

func (s *State) AutoOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoOpen
}

func (s *State) SetAutoOpen(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoOpen = v
}

func (s *State) ManualOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manualOpen
}

func (s *State) SetManualOpen(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualOpen = v
}
