package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/binwatch/internal/models"
)

const (
	// dedupeDelta is the minimum absolute fill-level change for a sample
	// to count toward the average; smaller moves are sensor noise.
	dedupeDelta = 0.5

	threshold = 80.0
)

// Daily holds the derived statistics for one calendar day.
type Daily struct {
	AverageFillLevel float64 `json:"averageFillLevel"`
	OpenCount        int     `json:"openCountToday"`
	Over80Count      int     `json:"over80Count"`
}

// ComputeDaily derives the day's statistics from samples ordered by
// timestamp. An empty day yields all zeros.
func ComputeDaily(samples []models.Sample) Daily {
	if len(samples) == 0 {
		return Daily{}
	}
	return Daily{
		AverageFillLevel: round1(dedupedAverage(samples)),
		OpenCount:        lidOpenEdges(samples),
		Over80Count:      overThresholdEdges(samples),
	}
}

// lidOpenEdges counts closed-to-open transitions. Consecutive open samples
// count once.
func lidOpenEdges(samples []models.Sample) int {
	count := 0
	wasOpen := false
	for _, s := range samples {
		if s.LidOpen && !wasOpen {
			count++
		}
		wasOpen = s.LidOpen
	}
	return count
}

// overThresholdEdges counts transitions from below to at-or-above the
// alert threshold. The synthetic predecessor of the first sample is 0.
func overThresholdEdges(samples []models.Sample) int {
	count := 0
	prev := 0.0
	for _, s := range samples {
		if prev < threshold && s.FillLevel >= threshold {
			count++
		}
		prev = s.FillLevel
	}
	return count
}

// dedupedAverage averages the sub-sequence obtained by keeping a sample
// only when its level differs from the last kept level by at least
// dedupeDelta.
func dedupedAverage(samples []models.Sample) float64 {
	sum := 0.0
	kept := 0
	var last float64
	for i, s := range samples {
		if i == 0 || math.Abs(s.FillLevel-last) >= dedupeDelta {
			sum += s.FillLevel
			kept++
			last = s.FillLevel
		}
	}
	if kept == 0 {
		return 0
	}
	return sum / float64(kept)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Range selects the chart-summary window and bucketing key.
type Range string

const (
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeYear  Range = "year"
)

// ParseRange maps a query value onto a Range, defaulting to week.
func ParseRange(s string) Range {
	switch Range(s) {
	case RangeMonth:
		return RangeMonth
	case RangeYear:
		return RangeYear
	default:
		return RangeWeek
	}
}

// StartOf returns the beginning of the summary window for now: the first
// of the year, the first of the month, or a trailing seven days.
func StartOf(rng Range, now time.Time) time.Time {
	switch rng {
	case RangeYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	case RangeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return now.AddDate(0, 0, -7)
	}
}

// Bucket is one chart-summary group.
type Bucket struct {
	Label       string  `json:"label"`
	AvgFill     float64 `json:"avgFill"`
	OpenCount   int     `json:"openCount"`
	Over80Count int     `json:"over80Count"`
}

// ChartSummary groups samples by the range's bucketing key (month of year,
// day of month, or weekday) and derives the daily statistics independently
// per bucket. Edge detection and de-duplication do not carry across bucket
// boundaries. Buckets come back in chronological order of their earliest
// sample.
func ChartSummary(samples []models.Sample, rng Range) []Bucket {
	if len(samples) == 0 {
		return []Bucket{}
	}

	type group struct {
		label   string
		first   time.Time
		samples []models.Sample
	}
	groups := make(map[string]*group)
	for _, s := range samples {
		label := bucketLabel(rng, s.Timestamp)
		g, ok := groups[label]
		if !ok {
			g = &group{label: label, first: s.Timestamp}
			groups[label] = g
		}
		g.samples = append(g.samples, s)
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].first.Before(ordered[j].first)
	})

	buckets := make([]Bucket, 0, len(ordered))
	for _, g := range ordered {
		buckets = append(buckets, Bucket{
			Label:       g.label,
			AvgFill:     round1(dedupedAverage(g.samples)),
			OpenCount:   lidOpenEdges(g.samples),
			Over80Count: overThresholdEdges(g.samples),
		})
	}
	return buckets
}

func bucketLabel(rng Range, ts time.Time) string {
	switch rng {
	case RangeYear:
		return fmt.Sprintf("%02d", int(ts.Month()))
	case RangeMonth:
		return fmt.Sprintf("%02d", ts.Day())
	default:
		return ts.Weekday().String()[:3]
	}
}
