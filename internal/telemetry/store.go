package telemetry

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/binwatch/internal/models"
)

const defaultFlushEvery = 32

// Store is the append-only telemetry log. Samples are held in an ordered
// in-memory slice and flushed to a compressed columnar segment file every
// flushEvery appends and on Close.
type Store struct {
	mu         sync.RWMutex
	samples    []models.Sample
	seg        *segmentFile
	dirty      int
	flushEvery int
}

// Open loads the segment at path if one exists and returns a ready store.
func Open(path string) (*Store, error) {
	s := &Store{
		seg:        &segmentFile{path: path},
		flushEvery: defaultFlushEvery,
	}
	samples, err := s.seg.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	s.samples = samples
	return s, nil
}

// Append adds a sample to the log. The in-memory append always succeeds;
// a segment flush failure is reported to the caller and retried on the
// next append.
func (s *Store) Append(sample models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	s.dirty++
	if s.dirty < s.flushEvery {
		return nil
	}
	if err := s.seg.write(s.samples); err != nil {
		return fmt.Errorf("flush telemetry segment: %w", err)
	}
	s.dirty = 0
	return nil
}

// QueryRange returns samples with start <= timestamp <= end, ordered by
// timestamp.
func (s *Store) QueryRange(start, end time.Time) []models.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Sample, 0)
	for _, smp := range s.samples {
		if smp.Timestamp.Before(start) || smp.Timestamp.After(end) {
			continue
		}
		out = append(out, smp)
	}
	return out
}

// Today returns the samples whose timestamp falls on the same calendar day
// as now, in the local timezone of now.
func (s *Store) Today(now time.Time) []models.Sample {
	year, month, day := now.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	return s.QueryRange(start, start.Add(24*time.Hour-time.Nanosecond))
}

// Len reports the number of stored samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Flush writes all buffered samples to the segment file.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 || s.dirty == 0 {
		return nil
	}
	if err := s.seg.write(s.samples); err != nil {
		return fmt.Errorf("flush telemetry segment: %w", err)
	}
	s.dirty = 0
	return nil
}

// Close flushes any pending samples.
func (s *Store) Close() error {
	return s.Flush()
}
