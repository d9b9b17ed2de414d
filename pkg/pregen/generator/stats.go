package generator

import (
	"time"
)

// Stats accumulates the outcome of a generation run.
type Stats struct {
	// TotalToProcess is the candidate count, fixed before processing starts.
	TotalToProcess int

	Processed int
	Skipped   int
	Errors    int

	// BytesGenerated sums the size of every uploaded thumbnail.
	BytesGenerated int64

	// Start is when processing began. Finished is set once the run ends and
	// freezes Elapsed.
	Start    time.Time
	Finished time.Time

	// ErrorDetails holds one message per failed item.
	ErrorDetails []string
}

func newStats(total int, start time.Time) *Stats {
	return &Stats{TotalToProcess: total, Start: start}
}

// Elapsed returns the time since Start, or the run duration once finished.
func (s *Stats) Elapsed() time.Duration {
	if s.Start.IsZero() {
		return 0
	}
	if !s.Finished.IsZero() {
		return s.Finished.Sub(s.Start)
	}
	return time.Since(s.Start)
}

// RatePerSecond is processed items per second of elapsed time.
func (s *Stats) RatePerSecond() float64 {
	secs := s.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed) / secs
}

// RatePerMinute is RatePerSecond scaled to minutes.
func (s *Stats) RatePerMinute() float64 {
	return s.RatePerSecond() * 60
}

// Completed counts processed, skipped and failed items.
func (s *Stats) Completed() int {
	return s.Processed + s.Skipped + s.Errors
}

// Remaining counts items not yet attempted.
func (s *Stats) Remaining() int {
	return s.TotalToProcess - s.Completed()
}

// ETA estimates the time to finish at the current rate. It is zero when
// nothing has been processed yet.
func (s *Stats) ETA() time.Duration {
	rate := s.RatePerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Remaining()) / rate * float64(time.Second))
}

// Success reports whether the run finished without errors.
func (s *Stats) Success() bool {
	return s.Errors == 0
}

func (s *Stats) fail(msg string) {
	s.Errors++
	s.ErrorDetails = append(s.ErrorDetails, msg)
}
