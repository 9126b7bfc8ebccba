package storage

import (
	"database/sql"
	"fmt"
	"time"

	"csvsniff/internal/dialect"
)

// Columns is the catalog column order shared by every SQL backend. Backends
// bind Row.Values() positionally against it.
var Columns = []string{
	"id",
	"name",
	"source",
	"delimiter",
	"quotechar",
	"escapechar",
	"doublequote",
	"skipinitialspace",
	"lineterminator",
	"quoting",
	"has_header",
	"strategy",
	"sniffed_at",
}

// Row is the flat, column-shaped form of a Record. Characters are stored as
// strings ("" for absent) so every backend can use a text column.
type Row struct {
	ID               string
	Name             string
	Source           string
	Delimiter        string
	Quote            string
	Escape           string
	DoubleQuote      bool
	SkipInitialSpace bool
	LineTerminator   string
	Quoting          string
	HasHeader        sql.NullBool
	Strategy         string
	SniffedAt        time.Time
}

// RowFromRecord flattens rec.
func RowFromRecord(rec Record) Row {
	c := rec.Dialect.ToConfig()
	r := Row{
		ID:               rec.ID,
		Name:             rec.Name,
		Source:           rec.Source,
		Delimiter:        c.Delimiter,
		Quote:            c.Quote,
		Escape:           c.Escape,
		DoubleQuote:      c.DoubleQuote,
		SkipInitialSpace: c.SkipInitialSpace,
		LineTerminator:   c.LineTerminator,
		Quoting:          c.Quoting,
		Strategy:         rec.Strategy,
		SniffedAt:        rec.SniffedAt.UTC(),
	}
	if rec.HasHeader != nil {
		r.HasHeader = sql.NullBool{Bool: *rec.HasHeader, Valid: true}
	}
	return r
}

// Values returns the row in Columns order. sniffed_at is passed as a
// time.Time; backends that store text convert it themselves.
func (r Row) Values() []any {
	var hasHeader any
	if r.HasHeader.Valid {
		hasHeader = r.HasHeader.Bool
	}
	return []any{
		r.ID,
		r.Name,
		r.Source,
		r.Delimiter,
		r.Quote,
		r.Escape,
		r.DoubleQuote,
		r.SkipInitialSpace,
		r.LineTerminator,
		r.Quoting,
		hasHeader,
		r.Strategy,
		r.SniffedAt,
	}
}

// Record rebuilds the Record. A stored dialect that no longer parses is an
// error naming the record.
func (r Row) Record() (Record, error) {
	d, err := dialect.Config{
		Name:             r.Name,
		Delimiter:        r.Delimiter,
		Quote:            r.Quote,
		Escape:           r.Escape,
		DoubleQuote:      r.DoubleQuote,
		SkipInitialSpace: r.SkipInitialSpace,
		LineTerminator:   r.LineTerminator,
		Quoting:          r.Quoting,
		Sniffed:          r.Strategy != "",
	}.Dialect()
	if err != nil {
		return Record{}, fmt.Errorf("storage: record %q: %w", r.Name, err)
	}

	rec := Record{
		ID:        r.ID,
		Name:      r.Name,
		Source:    r.Source,
		Dialect:   d,
		Strategy:  r.Strategy,
		SniffedAt: r.SniffedAt.UTC(),
	}
	if r.HasHeader.Valid {
		v := r.HasHeader.Bool
		rec.HasHeader = &v
	}
	return rec, nil
}
