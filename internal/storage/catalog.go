// Package storage persists sniffed dialects in a catalog so later runs (and
// other processes) can reuse them by name.
//
// Backends live in sub-packages and register themselves by kind from init();
// import csvsniff/internal/storage/all to link every backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"csvsniff/internal/dialect"
	"csvsniff/internal/metrics"

	"github.com/google/uuid"
)

// DefaultTable is the catalog table used when Config.Table is empty.
const DefaultTable = "sniffed_dialects"

// ErrNotFound is returned by Load when no record has the requested name.
var ErrNotFound = errors.New("storage: dialect not found")

// Config selects and configures a catalog backend.
//
// Kind must match a registered backend ("sqlite", "postgres", "mssql"). DSN is
// passed through unchanged; its format is backend-specific. Table may be
// schema-qualified where the backend supports it.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// TableName returns the configured table or DefaultTable.
func (c Config) TableName() string {
	if t := strings.TrimSpace(c.Table); t != "" {
		return t
	}
	return DefaultTable
}

// Record is one catalog entry: a named dialect and where it came from.
type Record struct {
	ID        string
	Name      string
	Source    string
	Dialect   dialect.Dialect
	HasHeader *bool
	Strategy  string
	SniffedAt time.Time
}

// NewRecord builds a Record with a fresh ID. at is stored in UTC.
func NewRecord(name, source string, d dialect.Dialect, hasHeader *bool, strategy string, at time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Dialect:   d,
		HasHeader: hasHeader,
		Strategy:  strategy,
		SniffedAt: at.UTC(),
	}
}

// Catalog stores Records keyed by name.
type Catalog interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSchema creates the catalog table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Save inserts rec, or replaces the record with the same name.
	Save(ctx context.Context, rec Record) error

	// Load returns the record named name, or ErrNotFound.
	Load(ctx context.Context, name string) (Record, error)

	// List returns all records ordered by name.
	List(ctx context.Context) ([]Record, error)
}

// Factory opens a Catalog for cfg.
type Factory func(ctx context.Context, cfg Config) (Catalog, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init().
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Catalog with the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Catalog, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	factoriesMu.RLock()
	f := factories[cfg.Kind]
	factoriesMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	cat, err := f(ctx, cfg)
	metrics.RecordCatalog(cfg.Kind, "open", err)
	return cat, err
}

// Restore publishes every catalog record into the process-wide dialect table
// and returns how many were registered. Records that no longer validate are
// skipped; their names are reported in the returned error alongside the count
// of the ones that did register.
func Restore(ctx context.Context, cat Catalog) (int, error) {
	recs, err := cat.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: list: %w", err)
	}

	var (
		n   int
		bad []string
	)
	for _, r := range recs {
		if err := dialect.Register(r.Name, r.Dialect); err != nil {
			bad = append(bad, r.Name)
			continue
		}
		n++
	}
	if len(bad) > 0 {
		return n, fmt.Errorf("restore: %d invalid record(s): %s", len(bad), strings.Join(bad, ", "))
	}
	return n, nil
}
