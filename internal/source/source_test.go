package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const csvText = "id,city,amount\n1,Oslo,10\n2,Bergen,11\n3,Tromsø,12\n"

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func xzBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := xw.Write([]byte(s)); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// numberedRows returns text that compresses poorly enough to span many
// deflate symbols.
func numberedRows(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d;%d;%x\n", i, i*7919%1000003, i*2654435761)
	}
	return b.String()
}

func TestPeek_Files(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data func(t *testing.T) []byte
	}{
		{"plain", "a.csv", func(*testing.T) []byte { return []byte(csvText) }},
		{"gzip", "a.csv.gz", func(t *testing.T) []byte { return gzipBytes(t, csvText) }},
		{"zstd", "a.csv.zst", func(t *testing.T) []byte { return zstdBytes(t, csvText) }},
		{"xz", "a.csv.xz", func(t *testing.T) []byte { return xzBytes(t, csvText) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, tt.file, tt.data(t))

			for _, u := range []string{p, "file://" + p} {
				got, err := Peek(context.Background(), u, 1024, Options{})
				if err != nil {
					t.Fatalf("Peek(%q) err=%v", u, err)
				}
				if string(got) != csvText {
					t.Fatalf("Peek(%q)=%q, want %q", u, got, csvText)
				}
			}
		})
	}
}

func TestPeek_LimitsSample(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "a.csv", []byte(csvText))
	got, err := Peek(context.Background(), p, 10, Options{})
	if err != nil {
		t.Fatalf("Peek err=%v", err)
	}
	if string(got) != csvText[:10] {
		t.Fatalf("Peek(n=10)=%q, want %q", got, csvText[:10])
	}

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"cut mid line", strings.Index(csvText, "Bergen"), "id,city,amount\n1,Oslo,10\n"},
		{"cut inside a two-byte rune", strings.Index(csvText, "ø") + 1, "id,city,amount\n1,Oslo,10\n2,Bergen,11\n"},
		{"cut after a newline", len("id,city,amount\n"), "id,city,amount\n"},
		{"whole file", len(csvText), csvText},
	}
	for _, tt := range tests {
		got, err := Peek(context.Background(), p, tt.n, Options{})
		if err != nil {
			t.Fatalf("%s: Peek err=%v", tt.name, err)
		}
		if string(got) != tt.want {
			t.Fatalf("%s: Peek(n=%d)=%q, want %q", tt.name, tt.n, got, tt.want)
		}
	}
}

func TestPeek_CompressedStreamCutAtRawLimit(t *testing.T) {
	t.Parallel()

	text := numberedRows(20000)
	gz := gzipBytes(t, text)
	p := writeFile(t, "big.csv.gz", gz)

	got, err := Peek(context.Background(), p, len(text), Options{RawBytes: int64(len(gz) / 2)})
	if err != nil {
		t.Fatalf("Peek err=%v, want partial sample", err)
	}
	if len(got) == 0 || len(got) >= len(text) || !strings.HasPrefix(text, string(got)) {
		t.Fatalf("Peek returned %d bytes, want a proper prefix of %d", len(got), len(text))
	}
	if got[len(got)-1] != '\n' {
		t.Fatalf("Peek ended in a partial row: %q", got[max(0, len(got)-20):])
	}
}

func TestPeek_TruncatedFileIsAnError(t *testing.T) {
	t.Parallel()

	gz := gzipBytes(t, numberedRows(20000))
	p := writeFile(t, "broken.csv.gz", gz[:len(gz)/2])

	if _, err := Peek(context.Background(), p, 1<<20, Options{}); err == nil {
		t.Fatalf("Peek of a truncated gzip file: want error")
	}
}

func TestPeek_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "nope.csv")

	if _, err := Peek(ctx, missing, 10, Options{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Peek(missing) err=%v, want ErrNotFound", err)
	}
	if _, err := Peek(ctx, "ftp://host/x.csv", 10, Options{}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("Peek(ftp) err=%v, want ErrUnsupportedScheme", err)
	}
	if _, err := Peek(ctx, missing, 0, Options{}); err == nil {
		t.Fatalf("Peek(n=0): want error")
	}
}

func TestPeek_HTTP(t *testing.T) {
	t.Parallel()

	gz := gzipBytes(t, csvText)
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.csv":
			gotRange = r.Header.Get("Range")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte(csvText))
		case "/data.csv.gz":
			_, _ = w.Write(gz)
		case "/boom":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	got, err := Peek(ctx, srv.URL+"/data.csv", 100, Options{})
	if err != nil {
		t.Fatalf("Peek(http) err=%v", err)
	}
	if string(got) != csvText {
		t.Fatalf("Peek(http)=%q, want %q", got, csvText)
	}
	if gotRange != "bytes=0-799" {
		t.Fatalf("Range header=%q, want %q", gotRange, "bytes=0-799")
	}

	got, err = Peek(ctx, srv.URL+"/data.csv.gz", 100, Options{})
	if err != nil || string(got) != csvText {
		t.Fatalf("Peek(http gzip)=%q err=%v", got, err)
	}

	if _, err := Peek(ctx, srv.URL+"/missing", 100, Options{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Peek(404) err=%v, want ErrNotFound", err)
	}
	if _, err := Peek(ctx, srv.URL+"/boom", 100, Options{}); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Peek(500) err=%v, want non-NotFound error", err)
	}
}

func TestScheme(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"/tmp/a.csv", "file"},
		{"a.csv", "file"},
		{"file:///tmp/a.csv", "file"},
		{"HTTPS://example.com/a.csv", "https"},
		{"http://example.com/a.csv", "http"},
		{"s3://bucket/key.csv", "s3"},
		{"gs://bucket/key.csv", "gs"},
	}
	for _, tt := range tests {
		if got := Scheme(tt.in); got != tt.want {
			t.Fatalf("Scheme(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}
