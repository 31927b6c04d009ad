/*
@Author: Lzww
@LastEditTime: 2025-10-13 20:22:16
@Description: Statistics collection for wave limiters
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"fmt"
	"sync/atomic"
)

// Stats contains the counters of every wave limiter sharing it.
// All fields are uint64 and must be accessed with atomic operations.
type Stats struct {
	// Limiter lifecycle
	LimitersCreated uint64 // Limiters created by managers

	// Callback statistics
	Callbacks      uint64 // Callbacks with a usable duration
	ZeroDurations  uint64 // Callbacks dropped for a zero duration
	IgnoredSamples uint64 // ADAPT samples whose waves matched neither reference nor trial

	// Phase statistics
	WarmUps     uint64 // WARMUP phases entered after a RUN
	Adaptations uint64 // ADAPT phases started
	Runs        uint64 // RUN phases started

	// Trial statistics
	Rounds          uint64 // Trial rounds started
	TrialsAdopted   uint64 // Trials that became the new reference
	TrialsRejected  uint64 // Trials rejected after a full round
	TrialsAbandoned uint64 // Trials decided early by the abandon threshold
	Discontinuities uint64 // Rounds dropped for discontinuous measurements
	Fallbacks       uint64 // Adaptations that gave up and kept the previous waves

	// Data dumper statistics
	DumpRecords uint64 // Records written to trace files
	DumpErrors  uint64 // Trace file write failures
}

// NewStats creates a zeroed statistics structure
func NewStats() *Stats {
	return new(Stats)
}

// Header returns the column headers, in the order of ToSlice
func (s *Stats) Header() []string {
	return []string{
		"LimitersCreated",
		"Callbacks",
		"ZeroDurations",
		"IgnoredSamples",
		"WarmUps",
		"Adaptations",
		"Runs",
		"Rounds",
		"TrialsAdopted",
		"TrialsRejected",
		"TrialsAbandoned",
		"Discontinuities",
		"Fallbacks",
		"DumpRecords",
		"DumpErrors",
	}
}

// ToSlice converts a snapshot of the counters to strings for display
func (s *Stats) ToSlice() []string {
	st := s.Copy()
	return []string{
		fmt.Sprint(st.LimitersCreated),
		fmt.Sprint(st.Callbacks),
		fmt.Sprint(st.ZeroDurations),
		fmt.Sprint(st.IgnoredSamples),
		fmt.Sprint(st.WarmUps),
		fmt.Sprint(st.Adaptations),
		fmt.Sprint(st.Runs),
		fmt.Sprint(st.Rounds),
		fmt.Sprint(st.TrialsAdopted),
		fmt.Sprint(st.TrialsRejected),
		fmt.Sprint(st.TrialsAbandoned),
		fmt.Sprint(st.Discontinuities),
		fmt.Sprint(st.Fallbacks),
		fmt.Sprint(st.DumpRecords),
		fmt.Sprint(st.DumpErrors),
	}
}

// Copy creates a snapshot of all counters
func (s *Stats) Copy() *Stats {
	d := NewStats()
	d.LimitersCreated = atomic.LoadUint64(&s.LimitersCreated)
	d.Callbacks = atomic.LoadUint64(&s.Callbacks)
	d.ZeroDurations = atomic.LoadUint64(&s.ZeroDurations)
	d.IgnoredSamples = atomic.LoadUint64(&s.IgnoredSamples)
	d.WarmUps = atomic.LoadUint64(&s.WarmUps)
	d.Adaptations = atomic.LoadUint64(&s.Adaptations)
	d.Runs = atomic.LoadUint64(&s.Runs)
	d.Rounds = atomic.LoadUint64(&s.Rounds)
	d.TrialsAdopted = atomic.LoadUint64(&s.TrialsAdopted)
	d.TrialsRejected = atomic.LoadUint64(&s.TrialsRejected)
	d.TrialsAbandoned = atomic.LoadUint64(&s.TrialsAbandoned)
	d.Discontinuities = atomic.LoadUint64(&s.Discontinuities)
	d.Fallbacks = atomic.LoadUint64(&s.Fallbacks)
	d.DumpRecords = atomic.LoadUint64(&s.DumpRecords)
	d.DumpErrors = atomic.LoadUint64(&s.DumpErrors)
	return d
}

// Reset sets all counters to zero
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.LimitersCreated, 0)
	atomic.StoreUint64(&s.Callbacks, 0)
	atomic.StoreUint64(&s.ZeroDurations, 0)
	atomic.StoreUint64(&s.IgnoredSamples, 0)
	atomic.StoreUint64(&s.WarmUps, 0)
	atomic.StoreUint64(&s.Adaptations, 0)
	atomic.StoreUint64(&s.Runs, 0)
	atomic.StoreUint64(&s.Rounds, 0)
	atomic.StoreUint64(&s.TrialsAdopted, 0)
	atomic.StoreUint64(&s.TrialsRejected, 0)
	atomic.StoreUint64(&s.TrialsAbandoned, 0)
	atomic.StoreUint64(&s.Discontinuities, 0)
	atomic.StoreUint64(&s.Fallbacks, 0)
	atomic.StoreUint64(&s.DumpRecords, 0)
	atomic.StoreUint64(&s.DumpErrors, 0)
}

func incr(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

// DefaultStats is shared by every manager whose Config has no Stats
var DefaultStats *Stats

func init() {
	DefaultStats = NewStats()
}
