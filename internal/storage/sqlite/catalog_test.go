package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"csvsniff/internal/dialect"
	"csvsniff/internal/storage"
)

func openTestCatalog(t *testing.T) storage.Catalog {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New(sqlite) err=%v", err)
	}
	t.Cleanup(cat.Close)

	if err := cat.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() err=%v", err)
	}
	// Idempotent.
	if err := cat.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema() err=%v", err)
	}
	return cat
}

func TestCatalog_SaveLoadList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := openTestCatalog(t)

	yes := true
	at := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	semi := dialect.Dialect{
		Delimiter:        ';',
		Quote:            '\'',
		SkipInitialSpace: true,
		LineTerminator:   dialect.DefaultLineTerminator,
		Quoting:          dialect.QuoteMinimal,
		Sniffed:          true,
	}

	recs := []storage.Record{
		storage.NewRecord("orders", "s3://bucket/orders.csv", semi, &yes, "quote", at),
		storage.NewRecord("accounts", "/data/accounts.tsv", dialect.ExcelTab, nil, "frequency", at),
	}
	for _, r := range recs {
		if err := cat.Save(ctx, r); err != nil {
			t.Fatalf("Save(%q) err=%v", r.Name, err)
		}
	}

	got, err := cat.Load(ctx, "orders")
	if err != nil {
		t.Fatalf("Load(orders) err=%v", err)
	}
	if got.ID != recs[0].ID || got.Source != "s3://bucket/orders.csv" || got.Strategy != "quote" {
		t.Fatalf("Load(orders)=%+v, want %+v", got, recs[0])
	}
	if !got.Dialect.Equal(semi) {
		t.Fatalf("Load(orders).Dialect=%+v, want %+v", got.Dialect, semi)
	}
	if got.HasHeader == nil || !*got.HasHeader {
		t.Fatalf("Load(orders).HasHeader=%v, want true", got.HasHeader)
	}
	if !got.SniffedAt.Equal(at) {
		t.Fatalf("Load(orders).SniffedAt=%s, want %s", got.SniffedAt, at)
	}

	list, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(list) != 2 || list[0].Name != "accounts" || list[1].Name != "orders" {
		t.Fatalf("List() names=%v, want [accounts orders]", names(list))
	}
	if list[0].HasHeader != nil {
		t.Fatalf("accounts HasHeader=%v, want nil", *list[0].HasHeader)
	}
	if list[0].Dialect.Delimiter != '\t' {
		t.Fatalf("accounts delimiter=%q, want tab", list[0].Dialect.Delimiter)
	}
}

func TestCatalog_SaveUpsertsByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := openTestCatalog(t)

	first := storage.NewRecord("feed", "a.csv", dialect.Excel, nil, "quote", time.Now())
	if err := cat.Save(ctx, first); err != nil {
		t.Fatalf("Save(first) err=%v", err)
	}
	second := storage.NewRecord("feed", "b.csv", dialect.ExcelTab, nil, "frequency", time.Now())
	if err := cat.Save(ctx, second); err != nil {
		t.Fatalf("Save(second) err=%v", err)
	}

	got, err := cat.Load(ctx, "feed")
	if err != nil {
		t.Fatalf("Load(feed) err=%v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("ID=%q, want original %q", got.ID, first.ID)
	}
	if got.Source != "b.csv" || got.Dialect.Delimiter != '\t' || got.Strategy != "frequency" {
		t.Fatalf("Load(feed)=%+v, want second record's fields", got)
	}

	list, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() len=%d, want 1", len(list))
	}
}

func TestCatalog_LoadMissing(t *testing.T) {
	t.Parallel()
	cat := openTestCatalog(t)

	_, err := cat.Load(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Load(nope) err=%v, want ErrNotFound", err)
	}
}

func TestCatalog_Restore(t *testing.T) {
	ctx := context.Background()
	cat := openTestCatalog(t)

	d := dialect.Dialect{Delimiter: '|', Quote: '"', LineTerminator: "\r\n", Sniffed: true}
	if err := cat.Save(ctx, storage.NewRecord("sqlite-restore-pipe", "x", d, nil, "frequency", time.Now())); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	t.Cleanup(func() { _ = dialect.Unregister("sqlite-restore-pipe") })

	n, err := storage.Restore(ctx, cat)
	if err != nil || n != 1 {
		t.Fatalf("Restore()=(%d, %v), want (1, nil)", n, err)
	}
	got, err := dialect.Get("sqlite-restore-pipe")
	if err != nil {
		t.Fatalf("Get after Restore err=%v", err)
	}
	if got.Delimiter != '|' {
		t.Fatalf("restored delimiter=%q, want '|'", got.Delimiter)
	}
}

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	got := buildUpsertSQL("sniffed_dialects")
	if n := strings.Count(got, "?"); n != len(storage.Columns) {
		t.Fatalf("placeholders=%d, want %d", n, len(storage.Columns))
	}
	if !strings.Contains(got, `ON CONFLICT ("name") DO UPDATE SET "source" = excluded."source"`) {
		t.Fatalf("upsert clause missing: %s", got)
	}
	if strings.Contains(got, `"id" = excluded`) || strings.Contains(got, `"name" = excluded`) {
		t.Fatalf("upsert must not overwrite id or name: %s", got)
	}
}

func TestSQLIdent(t *testing.T) {
	t.Parallel()
	if got, want := sqlIdent(`we"ird`), `"we""ird"`; got != want {
		t.Fatalf("sqlIdent()=%s, want %s", got, want)
	}
}

func names(recs []storage.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}
