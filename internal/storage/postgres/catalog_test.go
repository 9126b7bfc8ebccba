package postgres

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"csvsniff/internal/dialect"
	"csvsniff/internal/storage"
)

func TestSplitQualifiedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantSchema string
		wantTable  string
	}{
		{"sniffed_dialects", "", "sniffed_dialects"},
		{"meta.sniffed_dialects", "meta", "sniffed_dialects"},
		{" meta . t ", "meta", "t"},
		{"a.b.c", "", "a.b.c"},
	}
	for _, tt := range tests {
		s, tb := splitQualifiedName(tt.in)
		if s != tt.wantSchema || tb != tt.wantTable {
			t.Fatalf("splitQualifiedName(%q)=(%q,%q), want (%q,%q)", tt.in, s, tb, tt.wantSchema, tt.wantTable)
		}
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	schemaSQL, tableSQL := buildCreateSQL("meta.sniffed_dialects")
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "meta"` {
		t.Fatalf("schemaSQL=%q", schemaSQL)
	}
	if !strings.Contains(tableSQL, `CREATE TABLE IF NOT EXISTS "meta"."sniffed_dialects"`) {
		t.Fatalf("tableSQL missing qualified CREATE TABLE: %q", tableSQL)
	}
	for _, c := range storage.Columns {
		if !strings.Contains(tableSQL, `"`+c+`"`) {
			t.Fatalf("tableSQL missing column %q: %q", c, tableSQL)
		}
	}
	if !strings.Contains(tableSQL, `"sniffed_at" TIMESTAMPTZ`) {
		t.Fatalf("sniffed_at must be TIMESTAMPTZ: %q", tableSQL)
	}

	schemaSQL, _ = buildCreateSQL("sniffed_dialects")
	if schemaSQL != "" {
		t.Fatalf("unqualified table produced schemaSQL=%q", schemaSQL)
	}
}

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	got := buildUpsertSQL("sniffed_dialects")
	n := len(storage.Columns)
	if !strings.Contains(got, "$1, ") || !strings.Contains(got, "$"+strconv.Itoa(n)+")") {
		t.Fatalf("placeholders not numbered 1..%d: %s", n, got)
	}
	if strings.Contains(got, "$"+strconv.Itoa(n+1)) {
		t.Fatalf("too many placeholders: %s", got)
	}
	if !strings.Contains(got, `ON CONFLICT ("name") DO UPDATE SET "source" = EXCLUDED."source"`) {
		t.Fatalf("missing ON CONFLICT clause: %s", got)
	}
	if strings.Contains(got, `"id" = EXCLUDED`) {
		t.Fatalf("upsert must keep the original id: %s", got)
	}
}

func TestBuildSelectSQL(t *testing.T) {
	t.Parallel()

	got := buildSelectSQL("t")
	if !strings.HasPrefix(got, `SELECT "id", "name", `) || !strings.HasSuffix(got, ` FROM "t"`) {
		t.Fatalf("buildSelectSQL()=%q", got)
	}
}

// TestCatalog_Live runs against a real server when CSVSNIFF_TEST_POSTGRES_DSN
// is set.
func TestCatalog_Live(t *testing.T) {
	dsn := os.Getenv("CSVSNIFF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CSVSNIFF_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	table := "csvsniff_test.dialects_" + strings.ReplaceAll(time.Now().Format("150405.000000"), ".", "")
	cat, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn, Table: table})
	if err != nil {
		t.Fatalf("storage.New(postgres) err=%v", err)
	}
	defer cat.Close()

	if err := cat.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema err=%v", err)
	}
	rec := storage.NewRecord("live", "x.csv", dialect.Excel, nil, "quote", time.Now())
	if err := cat.Save(ctx, rec); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	got, err := cat.Load(ctx, "live")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if got.ID != rec.ID || !got.Dialect.Equal(dialect.Excel) {
		t.Fatalf("Load=%+v, want %+v", got, rec)
	}
}
