// Package metrics is the small backend interface sniff runs report through.
//
// Library code depends only on Backend; concrete sinks (Datadog) live in
// subpackages and are chosen by the CLI.
package metrics

import "time"

// Metric names emitted by sniff runs.
const (
	RunsTotal           = "sniff_runs_total"            // labels: status
	RecordsSampledTotal = "sniff_records_sampled_total" // no labels
	BytesSampledTotal   = "sniff_bytes_sampled_total"   // no labels
	DurationSeconds     = "sniff_duration_seconds"      // labels: stage, status
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives counter increments and histogram observations. Methods
// must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// OrNop returns b, or Nop when b is nil.
func OrNop(b Backend) Backend {
	if b == nil {
		return Nop{}
	}
	return b
}

// Flush flushes b if it buffers.
func Flush(b Backend) error {
	if f, ok := b.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(b Backend, stage, status string, start time.Time) {
	b.ObserveHistogram(DurationSeconds, time.Since(start).Seconds(), Labels{"stage": stage, "status": status})
}

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
