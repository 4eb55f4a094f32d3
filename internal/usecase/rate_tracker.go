package usecase

import (
	"sync/atomic"
	"time"
)

// RateEvent is a unit of progress counted by the RateTracker.
type RateEvent int

const (
	EventChecked RateEvent = iota
	EventFound
	EventError
)

// RateSnapshot is a copy of the tracker counters.
type RateSnapshot struct {
	CheckedPerMinute float64
	TotalChecked     int64
	TotalFound       int64
	TotalErrors      int64
	Elapsed          time.Duration
}

// RateTracker keeps run counters. CheckedPerMinute is total checked over wall-clock
// minutes since the last Reset, not a sliding window.
type RateTracker struct {
	checked atomic.Int64
	found   atomic.Int64
	errors  atomic.Int64
	start   atomic.Int64 // unix nanos
	now     func() time.Time
}

func NewRateTracker(now func() time.Time) *RateTracker {
	if now == nil {
		now = time.Now
	}
	t := &RateTracker{now: now}
	t.Reset()
	return t
}

// Reset zeroes the counters and moves the start marker to now.
func (t *RateTracker) Reset() {
	t.checked.Store(0)
	t.found.Store(0)
	t.errors.Store(0)
	t.start.Store(t.now().UnixNano())
}

func (t *RateTracker) Record(ev RateEvent) {
	switch ev {
	case EventChecked:
		t.checked.Add(1)
	case EventFound:
		t.found.Add(1)
	case EventError:
		t.errors.Add(1)
	}
}

func (t *RateTracker) Snapshot() RateSnapshot {
	elapsed := t.now().Sub(time.Unix(0, t.start.Load()))
	s := RateSnapshot{
		TotalChecked: t.checked.Load(),
		TotalFound:   t.found.Load(),
		TotalErrors:  t.errors.Load(),
		Elapsed:      elapsed,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		s.CheckedPerMinute = float64(s.TotalChecked) / minutes
	}
	return s
}
