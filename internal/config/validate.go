package config

import (
	"fmt"
	"strings"

	"csvsniff/internal/dialect"
)

// Severity grades a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var (
	storageKinds   = map[string]bool{"sqlite": true, "postgres": true, "mssql": true}
	metricBackends = map[string]bool{"": true, "none": true, "datadog": true}
)

// Validate reports problems in c. Any SeverityError issue makes c unusable.
func Validate(c Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if c.Sniff.SampleBytes <= 0 {
		add(SeverityError, "sniff.sample_bytes", "must be > 0, got %d", c.Sniff.SampleBytes)
	}
	if c.Sniff.PeekBytes <= 0 {
		add(SeverityError, "sniff.peek_bytes", "must be > 0, got %d", c.Sniff.PeekBytes)
	} else if c.Sniff.PeekBytes < c.Sniff.SampleBytes {
		add(SeverityWarning, "sniff.peek_bytes", "%d is below sample_bytes %d; samples are limited to the peek size",
			c.Sniff.PeekBytes, c.Sniff.SampleBytes)
	}
	if c.Sniff.HeaderRows <= 0 {
		add(SeverityError, "sniff.header_rows", "must be > 0, got %d", c.Sniff.HeaderRows)
	}
	seen := map[rune]bool{}
	for _, r := range c.Sniff.Preferred {
		switch {
		case r == '\n' || r == '\r':
			add(SeverityError, "sniff.preferred", "line breaks cannot be delimiters")
		case r > 126:
			add(SeverityWarning, "sniff.preferred", "%q is outside 7-bit ASCII and is never counted", r)
		case seen[r]:
			add(SeverityWarning, "sniff.preferred", "%q listed more than once", r)
		}
		seen[r] = true
	}

	if c.Source.RawBytes < 0 {
		add(SeverityError, "source.raw_bytes", "must be >= 0, got %d", c.Source.RawBytes)
	}

	kind := strings.TrimSpace(c.Storage.Kind)
	switch {
	case kind == "":
		if c.Storage.DSN != "" {
			add(SeverityWarning, "storage.dsn", "set without storage.kind; the catalog stays disabled")
		}
	case !storageKinds[kind]:
		add(SeverityError, "storage.kind", "unknown kind %q (want sqlite, postgres or mssql)", kind)
	case strings.TrimSpace(c.Storage.DSN) == "":
		add(SeverityError, "storage.dsn", "required when storage.kind=%s", kind)
	}

	if !metricBackends[c.Metrics.Backend] {
		add(SeverityError, "metrics.backend", "unknown backend %q (want none or datadog)", c.Metrics.Backend)
	}
	if c.Metrics.FlushSeconds < 0 {
		add(SeverityError, "metrics.flush_seconds", "must be >= 0, got %d", c.Metrics.FlushSeconds)
	}

	names := map[string]bool{}
	for i, dc := range c.Dialects {
		path := fmt.Sprintf("dialects[%d]", i)
		if strings.TrimSpace(dc.Name) == "" {
			add(SeverityError, path+".name", "required")
		} else if names[dc.Name] {
			add(SeverityWarning, path+".name", "%q defined more than once; the last definition wins", dc.Name)
		}
		names[dc.Name] = true

		d, err := dc.Dialect()
		if err != nil {
			add(SeverityError, path, "%v", err)
			continue
		}
		if err := dialect.Validate(d); err != nil {
			add(SeverityError, path, "%v", err)
		}
	}
	return out
}

// HasErrors reports whether issues contains a SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
