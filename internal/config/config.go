// Package config loads csvsniff settings from a YAML or JSON file and the
// environment.
//
// Precedence, lowest to highest: built-in defaults, the config file,
// environment variables. Command-line flags are applied on top by cmd/csvsniff.
//
// Environment overrides:
//
//	SNIFF_SAMPLE_BYTES   sniff.sample_bytes
//	SNIFF_STORAGE_KIND   storage.kind
//	SNIFF_STORAGE_DSN    storage.dsn
//	METRICS_BACKEND      metrics.backend
//	METRICS_TAGS         metrics.tags (comma-separated)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"csvsniff/internal/dialect"
	"csvsniff/internal/sniff"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPeekBytes is how much of each input is fetched before sniffing.
const DefaultPeekBytes = 64 * 1024

// Config is the full csvsniff configuration.
type Config struct {
	Sniff   SniffConfig   `json:"sniff" yaml:"sniff"`
	Source  SourceConfig  `json:"source" yaml:"source"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Dialects are registered by name at startup, before any sniffing.
	Dialects []dialect.Config `json:"dialects,omitempty" yaml:"dialects,omitempty"`
}

// SniffConfig tunes the sniffer.
type SniffConfig struct {
	// SampleBytes is how much of the fetched text the sniffer analyses.
	SampleBytes int `json:"sample_bytes" yaml:"sample_bytes"`

	// PeekBytes is how much decoded text is fetched per input.
	PeekBytes int `json:"peek_bytes" yaml:"peek_bytes"`

	// Preferred lists delimiter tie-break candidates in order, e.g. ",\t;".
	// Empty means the sniffer's built-in order.
	Preferred string `json:"preferred,omitempty" yaml:"preferred,omitempty"`

	// HeaderRows caps the rows examined after the header candidate.
	HeaderRows int `json:"header_rows" yaml:"header_rows"`
}

// PreferredRunes returns Preferred as runes, or nil when unset.
func (s SniffConfig) PreferredRunes() []rune {
	if s.Preferred == "" {
		return nil
	}
	return []rune(s.Preferred)
}

// SourceConfig controls input fetching.
type SourceConfig struct {
	AllowInsecureTLS bool     `json:"allow_insecure_tls" yaml:"allow_insecure_tls"`
	RawBytes         int64    `json:"raw_bytes,omitempty" yaml:"raw_bytes,omitempty"`
	S3               S3Config `json:"s3" yaml:"s3"`
}

// S3Config addresses S3 or an S3-compatible endpoint. Credentials come from
// the default AWS chain.
type S3Config struct {
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty"`
}

// StorageConfig selects the dialect catalog. An empty Kind disables it.
type StorageConfig struct {
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty"`
	DSN   string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// MetricsConfig selects the metrics backend ("none" or "datadog").
type MetricsConfig struct {
	Backend      string   `json:"backend,omitempty" yaml:"backend,omitempty"`
	JobName      string   `json:"job_name,omitempty" yaml:"job_name,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	FlushSeconds int      `json:"flush_seconds,omitempty" yaml:"flush_seconds,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sniff: SniffConfig{
			SampleBytes: sniff.DefaultSampleSize,
			PeekBytes:   DefaultPeekBytes,
			HeaderRows:  sniff.DefaultHeaderRows,
		},
		Metrics: MetricsConfig{
			Backend:      "none",
			JobName:      "csvsniff",
			FlushSeconds: 60,
		},
	}
}

// Load reads path (when non-empty) over the defaults and then applies the
// environment. The format follows the extension: .yaml, .yml or .json.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(b, filepath.Ext(path), &c); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Decode unmarshals b into c according to ext. Fields absent from b keep
// their current values.
func Decode(b []byte, ext string, c *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, c)
	case ".json":
		return json.Unmarshal(b, c)
	default:
		return fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .json)", ext)
	}
}

// ApplyEnv overlays the environment variables listed in the package doc.
func ApplyEnv(c *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("SNIFF_SAMPLE_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SNIFF_SAMPLE_BYTES: %w", err)
		}
		c.Sniff.SampleBytes = n
	}
	if v := strings.TrimSpace(getenv("SNIFF_STORAGE_KIND")); v != "" {
		c.Storage.Kind = v
	}
	if v := strings.TrimSpace(getenv("SNIFF_STORAGE_DSN")); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(getenv("METRICS_BACKEND")); v != "" {
		c.Metrics.Backend = v
	}
	if v := strings.TrimSpace(getenv("METRICS_TAGS")); v != "" {
		c.Metrics.Tags = splitCSV(v)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
