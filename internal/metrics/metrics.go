// Package metrics is the process-wide metrics facade.
//
// Library code records through the package-level functions; the command picks
// a concrete Backend at startup with SetBackend. Until then every call goes to
// a nop backend, so tests and library users need no setup.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (e.g. {"strategy": "quote"}).
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use.
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

// SetBackend installs b as the process-wide backend. A nil b restores the nop
// backend.
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

// IncCounter adds delta to counter name.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for histogram name.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit anything it buffered.
func Flush() error {
	return current().Flush()
}

// RecordPeek records one sample read: its outcome, latency and size.
//
// scheme is the source kind ("file", "http", "s3"). A non-nil err counts as a
// failure and skips the size histogram.
func RecordPeek(scheme string, err error, elapsed time.Duration, n int) {
	labels := Labels{"scheme": scheme, "status": status(err)}
	IncCounter("source_peek_total", 1, labels)
	ObserveHistogram("source_peek_duration_seconds", elapsed.Seconds(), labels)
	if err == nil {
		ObserveHistogram("source_peek_bytes", float64(n), Labels{"scheme": scheme})
	}
}

// RecordCatalog records one catalog operation against a storage backend.
func RecordCatalog(kind, op string, err error) {
	IncCounter("catalog_ops_total", 1, Labels{
		"kind":   kind,
		"op":     op,
		"status": status(err),
	})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
