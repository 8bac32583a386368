// Package metrics defines the minimal instrumentation surface the store
// packages emit to. Backends live in subpackages; the core code depends
// only on Backend.
package metrics

import "time"

// Labels are free-form metric dimensions, e.g. {"op": "append", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the store.
const (
	OpTotal           = "rowbridge_op_total"
	RowsTotal         = "rowbridge_rows_total"
	RetriesTotal      = "rowbridge_retries_total"
	CacheTotal        = "rowbridge_cache_total"
	OpDurationSeconds = "rowbridge_op_duration_seconds"
)

// Nop discards all metrics. Zero value is ready to use.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var _ Backend = Nop{}

// TrackOp records one completed operation: a counter increment and a
// duration sample, both tagged with op and status.
func TrackOp(b Backend, op string, start time.Time, err error) {
	if b == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := Labels{"op": op, "status": status}
	b.IncCounter(OpTotal, 1, labels)
	b.ObserveHistogram(OpDurationSeconds, time.Since(start).Seconds(), labels)
}
