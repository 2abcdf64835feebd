// Package metrics is a small facade over a pluggable metrics backend.
//
// Pipeline code calls the package-level helpers; the CLI picks a backend
// once at startup with SetBackend. The default backend drops everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "load", "status": "ok"}.
type Labels map[string]string

// Backend receives metric samples. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b; nil restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the backend to submit whatever it buffered.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one pipeline step and its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter("etl_step_total", 1, l)
	ObserveHistogram("etl_step_duration_seconds", d.Seconds(), l)
}

// RecordRecords counts n records of a kind (e.g. "raw", "inserted", "skipped").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter("etl_records_total", float64(n), Labels{"kind": kind})
}

// RecordBatch counts one insert statement batch for table.
func RecordBatch(table string) {
	IncCounter("etl_batches_total", 1, Labels{"table": table})
}

// RecordHTTP records one HTTP fetch. status is 0 when no response arrived.
func RecordHTTP(status int, err error, d time.Duration, bytes int64) {
	l := Labels{"status": strconv.Itoa(status)}
	if status == 0 {
		l["status"] = "none"
	}
	IncCounter("etl_http_requests_total", 1, l)
	if err != nil || status >= 400 {
		IncCounter("etl_http_errors_total", 1, l)
	}
	ObserveHistogram("etl_http_request_duration_seconds", d.Seconds(), l)
	if bytes > 0 {
		ObserveHistogram("etl_http_download_bytes", float64(bytes), l)
	}
}
