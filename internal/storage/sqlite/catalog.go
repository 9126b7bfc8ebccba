package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"csvsniff/internal/metrics"
	"csvsniff/internal/storage"
)

// Catalog implements storage.Catalog on SQLite.
//
// SQLite has no native timestamp or boolean type: sniffed_at is stored as
// RFC3339Nano TEXT in UTC and flags as INTEGER 0/1.
type Catalog struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens (creating if needed) the database file named by cfg.DSN, e.g.
// "catalog.db" or "file:catalog.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, cfg storage.Config) (storage.Catalog, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db, table: cfg.TableName()}, nil
}

func (c *Catalog) Close() { _ = c.db.Close() }

// EnsureSchema creates the catalog table if it is missing. Safe to run on
// every start.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, buildCreateSQL(c.table))
	metrics.RecordCatalog("sqlite", "ensure_schema", err)
	if err != nil {
		return fmt.Errorf("create table %s: %w", c.table, err)
	}
	return nil
}

// Save upserts rec by name. The id of an existing row is kept.
func (c *Catalog) Save(ctx context.Context, rec storage.Record) error {
	args := storage.RowFromRecord(rec).Values()
	// sniffed_at is last; store it as text.
	args[len(args)-1] = formatSQLiteTime(rec.SniffedAt)

	_, err := c.db.ExecContext(ctx, buildUpsertSQL(c.table), args...)
	metrics.RecordCatalog("sqlite", "save", err)
	if err != nil {
		return fmt.Errorf("save %q: %w", rec.Name, err)
	}
	return nil
}

// Load returns the record named name.
func (c *Catalog) Load(ctx context.Context, name string) (storage.Record, error) {
	q := buildSelectSQL(c.table) + ` WHERE "name" = ?`
	row := c.db.QueryRowContext(ctx, q, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	metrics.RecordCatalog("sqlite", "load", err)
	return rec, err
}

// List returns every record ordered by name.
func (c *Catalog) List(ctx context.Context) ([]storage.Record, error) {
	rows, err := c.db.QueryContext(ctx, buildSelectSQL(c.table)+` ORDER BY "name"`)
	if err != nil {
		metrics.RecordCatalog("sqlite", "list", err)
		return nil, err
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			metrics.RecordCatalog("sqlite", "list", err)
			return nil, err
		}
		out = append(out, rec)
	}
	err = rows.Err()
	metrics.RecordCatalog("sqlite", "list", err)
	return out, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (storage.Record, error) {
	var (
		r  storage.Row
		at string
	)
	err := s.Scan(
		&r.ID, &r.Name, &r.Source,
		&r.Delimiter, &r.Quote, &r.Escape,
		&r.DoubleQuote, &r.SkipInitialSpace,
		&r.LineTerminator, &r.Quoting,
		&r.HasHeader, &r.Strategy, &at,
	)
	if err != nil {
		return storage.Record{}, err
	}
	if r.SniffedAt, err = parseSQLiteTime(at); err != nil {
		return storage.Record{}, fmt.Errorf("record %q: sniffed_at: %w", r.Name, err)
	}
	return r.Record()
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" TEXT NOT NULL,
  "name" TEXT NOT NULL PRIMARY KEY,
  "source" TEXT NOT NULL DEFAULT '',
  "delimiter" TEXT NOT NULL DEFAULT '',
  "quotechar" TEXT NOT NULL DEFAULT '',
  "escapechar" TEXT NOT NULL DEFAULT '',
  "doublequote" INTEGER NOT NULL DEFAULT 0,
  "skipinitialspace" INTEGER NOT NULL DEFAULT 0,
  "lineterminator" TEXT NOT NULL,
  "quoting" TEXT NOT NULL,
  "has_header" INTEGER NULL,
  "strategy" TEXT NOT NULL DEFAULT '',
  "sniffed_at" TEXT NOT NULL
)`, sqlIdent(table))
}

// buildUpsertSQL inserts one row in storage.Columns order, replacing every
// column except id and name when the name already exists.
func buildUpsertSQL(table string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(storage.Columns))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimRight(strings.Repeat("?, ", len(storage.Columns)), ", "))
	b.WriteString(`) ON CONFLICT ("name") DO UPDATE SET `)

	first := true
	for _, c := range storage.Columns {
		if c == "id" || c == "name" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(sqlIdent(c))
		b.WriteString(" = excluded.")
		b.WriteString(sqlIdent(c))
	}
	return b.String()
}

func buildSelectSQL(table string) string {
	return "SELECT " + joinIdentList(storage.Columns) + " FROM " + sqlIdent(table)
}

func joinIdentList(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = sqlIdent(c)
	}
	return strings.Join(parts, ", ")
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps read back from SQLite.
//
// Supported formats:
//   - RFC3339Nano (what Save writes)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00" and its fractional variant
//   - "2006-01-02 15:04:05" (interpreted as UTC, e.g. CURRENT_TIMESTAMP)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
