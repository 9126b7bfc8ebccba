// Command csvsniff infers the dialect of delimited text files and reports
// whether they start with a header row.
//
// For every input it fetches a bounded prefix (default 64KB), sniffs the
// delimiter, quote character and skip-initial-space flag, runs header
// detection, and prints one JSON object to stdout:
//
//	{"source":"orders.csv","dialect":{...},"has_header":true,"strategy":"quote"}
//
// Inputs (-url) may be a local path, a doublestar glob ("data/**/*.csv"),
// a file:// URL, an http(s):// URL, or s3://bucket/key. gzip, zstd, bzip2 and
// xz inputs are decompressed transparently.
//
// # Catalog
//
// With -store (or storage.kind in the config file) every sniffed dialect is
// saved to a catalog table, and catalog entries are registered by name at
// startup. -list prints the catalog and exits.
//
// The catalog DSN follows the same override chain as the other tools:
//  1. -dsn flag
//  2. DSN env var
//  3. DSN_HOST / DSN_PORT / DSN_USER / DSN_PASSWORD / DSN_DB (+ DSN_SSLMODE,
//     DSN_ENCRYPT, DSN_SQLITE, DSN_PARAMS)
//  4. storage.dsn from the config file or SNIFF_STORAGE_DSN
//
// Exit codes: 0 on success, 2 on usage errors, 1 when any input fails.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	jsoniter "github.com/json-iterator/go"

	"csvsniff/internal/config"
	"csvsniff/internal/dialect"
	"csvsniff/internal/metrics"
	"csvsniff/internal/metrics/datadog"
	"csvsniff/internal/sniff"
	"csvsniff/internal/source"
	"csvsniff/internal/storage"

	// register all catalog backends with the storage factory.
	_ "csvsniff/internal/storage/all"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// result is the JSON object printed per input.
type result struct {
	Source    string         `json:"source"`
	Dialect   dialect.Config `json:"dialect"`
	HasHeader *bool          `json:"has_header"`
	Strategy  string         `json:"strategy"`

	Registered string `json:"registered,omitempty"`
	Cataloged  string `json:"cataloged,omitempty"`
}

func main() {
	var (
		flagURL      = flag.String("url", "", "Path, glob, file://, http(s):// or s3:// URL of the input(s)")
		flagBytes    = flag.Int("bytes", 0, "Bytes of decoded text fetched per input (default from config: 65536)")
		flagSample   = flag.Int("sample", 0, "Bytes the sniffer analyses (default from config: 16384)")
		flagConfig   = flag.String("config", "", "YAML or JSON config file")
		flagRegister = flag.String("register", "", "Register the sniffed dialect under this name (single input only)")
		flagStore    = flag.String("store", "", "Catalog backend: sqlite|postgres|mssql (overrides storage.kind)")
		flagDSN      = flag.String("dsn", "", "Catalog DSN (highest priority). Example: file:csvsniff.db")
		flagMetrics  = flag.String("metrics-backend", "", "Metrics backend: none|datadog (overrides metrics.backend)")
		flagPretty   = flag.Bool("pretty", false, "Pretty-print JSON output")
		flagInsecure = flag.Bool("allow-insecure", false, "Skip TLS verification for https:// inputs")
		flagList     = flag.Bool("list", false, "Print the dialect catalog and exit")
		verbose      = flag.Bool("v", false, "enable verbose logs")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" && !*flagList {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fatalf("config: %v", err)
	}
	if *flagBytes > 0 {
		cfg.Sniff.PeekBytes = *flagBytes
	}
	if *flagSample > 0 {
		cfg.Sniff.SampleBytes = *flagSample
	}
	if *flagStore != "" {
		cfg.Storage.Kind = normalizeKind(*flagStore)
	}
	if *flagMetrics != "" {
		cfg.Metrics.Backend = *flagMetrics
	}
	if *flagInsecure {
		cfg.Source.AllowInsecureTLS = true
	}
	if cfg.Storage.Kind != "" {
		cfg.Storage.DSN, err = resolveDSN(cfg.Storage.Kind, strings.TrimSpace(*flagDSN), cfg.Storage.DSN, os.Getenv)
		if err != nil {
			fatalf("dsn override: %v", err)
		}
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}

	closeMetrics := setupMetrics(cfg.Metrics, *verbose)
	defer closeMetrics()

	for _, dc := range cfg.Dialects {
		d, _ := dc.Dialect() // validated above
		if err := dialect.Register(dc.Name, d); err != nil {
			fatalf("register dialect %q: %v", dc.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var cat storage.Catalog
	if cfg.Storage.Kind != "" {
		cat, err = openCatalog(ctx, cfg.Storage, *verbose)
		if err != nil {
			fatalf("catalog: %v", err)
		}
		defer cat.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}

	if *flagList {
		if cat == nil {
			fmt.Fprintln(os.Stderr, "-list needs -store or storage.kind")
			os.Exit(2)
		}
		if err := listCatalog(ctx, cat, enc); err != nil {
			fatalf("list: %v", err)
		}
		return
	}

	inputs, err := expandInputs(*flagURL)
	if err != nil {
		fatalf("inputs: %v", err)
	}
	if *flagRegister != "" && len(inputs) > 1 {
		fmt.Fprintf(os.Stderr, "-register needs a single input; %q matched %d\n", *flagURL, len(inputs))
		os.Exit(2)
	}

	var logger *log.Logger
	if *verbose {
		logger = log.Default()
	}

	failed := 0
	for _, in := range inputs {
		res, err := sniffOne(ctx, in, cfg, logger)
		if err != nil {
			log.Printf("%s: %v", in, err)
			failed++
			continue
		}

		if *flagRegister != "" {
			d, _ := res.Dialect.Dialect()
			if err := dialect.Register(*flagRegister, d); err != nil {
				log.Printf("%s: register %q: %v", in, *flagRegister, err)
				failed++
				continue
			}
			res.Registered = *flagRegister
		}

		if cat != nil {
			name := *flagRegister
			if name == "" {
				name = baseName(in)
			}
			if err := saveResult(ctx, cat, name, res); err != nil {
				log.Printf("%s: catalog save: %v", in, err)
				failed++
				continue
			}
			res.Cataloged = name
		}

		if err := enc.Encode(res); err != nil {
			fatalf("encode result: %v", err)
		}
	}

	if failed > 0 {
		closeMetrics()
		log.Fatalf("%d of %d input(s) failed", failed, len(inputs))
	}
}

// sniffOne peeks at in, sniffs its dialect and checks for a header row.
func sniffOne(ctx context.Context, in string, cfg config.Config, logger *log.Logger) (result, error) {
	sample, err := source.Peek(ctx, in, cfg.Sniff.PeekBytes, source.Options{
		RawBytes:         cfg.Source.RawBytes,
		AllowInsecureTLS: cfg.Source.AllowInsecureTLS,
		S3: source.S3Options{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
		},
		Logger: logger,
	})
	if err != nil {
		return result{}, err
	}

	opts := []sniff.Option{
		sniff.WithSampleSize(cfg.Sniff.SampleBytes),
		sniff.WithHeaderRows(cfg.Sniff.HeaderRows),
		sniff.WithLogger(logger),
	}
	if p := cfg.Sniff.PreferredRunes(); p != nil {
		opts = append(opts, sniff.WithPreferred(p...))
	}
	s := sniff.New(opts...)

	d, err := s.Sniff(bytes.NewReader(sample))
	if err != nil {
		return result{}, err
	}
	has, err := s.HasHeaders()
	if err != nil {
		return result{}, err
	}

	return result{
		Source:    in,
		Dialect:   d.ToConfig(),
		HasHeader: &has,
		Strategy:  s.Strategy().String(),
	}, nil
}

// expandInputs resolves -url. Local patterns containing glob metacharacters
// are expanded with doublestar; everything else is a single input.
func expandInputs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if source.Scheme(raw) != "file" || strings.HasPrefix(raw, "file://") {
		return []string{raw}, nil
	}
	if !strings.ContainsAny(raw, "*?[{") {
		return []string{raw}, nil
	}
	matches, err := doublestar.FilepathGlob(raw, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", raw, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q matched no files", raw)
	}
	return matches, nil
}

// baseName is the catalog name used when -register is not given: the last
// path element of the input.
func baseName(in string) string {
	in = strings.TrimSuffix(in, "/")
	if i := strings.LastIndexAny(in, `/\`); i >= 0 {
		in = in[i+1:]
	}
	if in == "" {
		return "input"
	}
	return in
}

func openCatalog(ctx context.Context, sc config.StorageConfig, verbose bool) (storage.Catalog, error) {
	cat, err := storage.New(ctx, storage.Config{Kind: sc.Kind, DSN: sc.DSN, Table: sc.Table})
	if err != nil {
		return nil, err
	}
	if err := cat.EnsureSchema(ctx); err != nil {
		cat.Close()
		return nil, err
	}
	n, err := storage.Restore(ctx, cat)
	if err != nil {
		// Invalid rows are reported but do not block sniffing.
		log.Printf("catalog: %v", err)
	}
	if verbose {
		log.Printf("catalog: kind=%s table=%s restored=%d", sc.Kind, storage.Config{Table: sc.Table}.TableName(), n)
	}
	return cat, nil
}

func saveResult(ctx context.Context, cat storage.Catalog, name string, res result) error {
	d, err := res.Dialect.Dialect()
	if err != nil {
		return err
	}
	d.Name = name
	return cat.Save(ctx, storage.NewRecord(name, res.Source, d, res.HasHeader, res.Strategy, time.Now()))
}

// catalogEntry is the JSON shape printed by -list.
type catalogEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	Dialect   dialect.Config `json:"dialect"`
	HasHeader *bool          `json:"has_header"`
	Strategy  string         `json:"strategy"`
	SniffedAt time.Time      `json:"sniffed_at"`
}

type encoder interface {
	Encode(v any) error
}

func listCatalog(ctx context.Context, cat storage.Catalog, enc encoder) error {
	recs, err := cat.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := enc.Encode(catalogEntry{
			ID:        r.ID,
			Name:      r.Name,
			Source:    r.Source,
			Dialect:   r.Dialect.ToConfig(),
			HasHeader: r.HasHeader,
			Strategy:  r.Strategy,
			SniffedAt: r.SniffedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// setupMetrics installs the configured backend and returns its shutdown
// function. The returned function is safe to call more than once.
func setupMetrics(mc config.MetricsConfig, verbose bool) func() {
	nop := func() {}
	switch mc.Backend {
	case "datadog":
		// Buffers metrics, submits periodically and once more on Close.
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    mc.JobName,
			Tags:       mc.Tags,
			FlushEvery: time.Duration(mc.FlushSeconds) * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		if verbose {
			log.Printf("metrics: backend=datadog job_name=%v tags=%v", mc.JobName, mc.Tags)
		}
		metrics.SetBackend(b)

		closed := false
		return func() {
			if closed {
				return
			}
			closed = true
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", mc.Backend)
		}
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", mc.Backend)
		return nop
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
