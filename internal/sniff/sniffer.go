// Package sniff infers the dialect of delimited text from a bounded sample.
//
// The package is responsible for:
//   - reading a bounded prefix of the input (default 16 KiB)
//   - guessing quote character and delimiter from quoted spans
//   - falling back to per-line character frequencies when there are no quotes
//   - deciding whether the first row is a header
//
// Design constraints:
//   - Inference is best-effort; failing to find a delimiter is not an error,
//     it yields a single-column dialect.
//   - Cost is bounded by the sample size and the number of rows examined for
//     header detection.
//   - A Sniffer remembers its last result and is not safe for concurrent use.
//     Use one Sniffer per goroutine.
package sniff

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"csvsniff/internal/dialect"
	"csvsniff/internal/metrics"
)

// DefaultSampleSize is the number of bytes Sniff reads.
const DefaultSampleSize = 16 * 1024

var (
	// ErrNoDialect is returned by HasHeaders and RegisterDialect before a
	// successful Sniff.
	ErrNoDialect = errors.New("sniff: no dialect sniffed yet")

	// ErrNotSeekable is returned when header detection cannot rewind its input.
	ErrNotSeekable = errors.New("sniff: input cannot be rewound")
)

// Strategy names the detector that produced a dialect.
type Strategy int

const (
	// StrategyNone means neither detector found a delimiter.
	StrategyNone Strategy = iota
	// StrategyQuote means quote/delimiter co-occurrence decided.
	StrategyQuote
	// StrategyFrequency means per-line character frequency decided.
	StrategyFrequency
)

func (s Strategy) String() string {
	switch s {
	case StrategyQuote:
		return "quote"
	case StrategyFrequency:
		return "frequency"
	default:
		return "none"
	}
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithSampleSize sets how many bytes Sniff reads. Values <= 0 keep the default.
func WithSampleSize(n int) Option {
	return func(s *Sniffer) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

// WithPreferred replaces the delimiter tie-break order.
func WithPreferred(delims ...rune) Option {
	return func(s *Sniffer) {
		s.preferred = append([]rune(nil), delims...)
	}
}

// WithHeaderRows sets how many rows after the first header detection
// examines. Values <= 0 keep the default.
func WithHeaderRows(n int) Option {
	return func(s *Sniffer) {
		if n > 0 {
			s.headerRows = n
		}
	}
}

// WithLogger routes the sniffer's log lines to l.
func WithLogger(l *log.Logger) Option {
	return func(s *Sniffer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sniffer deduces the format of a delimited text file.
type Sniffer struct {
	sampleSize int
	preferred  []rune
	headerRows int
	logger     *log.Logger

	// Last result, used by HasHeaders and RegisterDialect.
	src      io.Reader
	dialect  dialect.Dialect
	strategy Strategy
	sniffed  bool
}

// New returns a Sniffer with default settings adjusted by opts.
func New(opts ...Option) *Sniffer {
	s := &Sniffer{
		sampleSize: DefaultSampleSize,
		preferred:  append([]rune(nil), DefaultPreferred...),
		headerRows: DefaultHeaderRows,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sniff reads a sample from r and returns the inferred dialect.
//
// The quote/delimiter co-occurrence detector runs first; frequency analysis
// runs only when it cannot decide. The returned dialect is always complete:
// line terminator "\r\n", minimal quoting, and '"' as quote character when
// none was detected. An undetermined delimiter is left absent.
//
// Errors:
//   - Only read errors from r are returned.
func (s *Sniffer) Sniff(r io.Reader) (dialect.Dialect, error) {
	start := time.Now()

	sample, err := readSample(r, s.sampleSize)
	if err != nil {
		return dialect.Dialect{}, fmt.Errorf("sniff: read sample: %w", err)
	}

	g, err := guessQuoteAndDelimiter(sample)
	if err != nil {
		return dialect.Dialect{}, fmt.Errorf("sniff: match quotes: %w", err)
	}

	strategy := StrategyQuote
	if !g.found {
		strategy = StrategyNone
		delim, skip, ok := guessDelimiter(sample, s.preferred)
		if ok {
			strategy = StrategyFrequency
		}
		g.delimiter, g.skipInitialSpace = delim, skip
	}

	quote := g.quote
	if quote == 0 {
		quote = '"'
	}
	if quote == g.delimiter {
		quote = '\''
	}

	d := dialect.Dialect{
		Name:             dialect.SniffedName,
		Delimiter:        g.delimiter,
		Quote:            quote,
		DoubleQuote:      false,
		SkipInitialSpace: g.skipInitialSpace,
		LineTerminator:   dialect.DefaultLineTerminator,
		Quoting:          dialect.QuoteMinimal,
		Sniffed:          true,
	}

	s.src = r
	s.dialect = d
	s.strategy = strategy
	s.sniffed = true

	labels := metrics.Labels{"strategy": strategy.String()}
	metrics.IncCounter("sniff_total", 1, labels)
	metrics.ObserveHistogram("sniff_duration_seconds", time.Since(start).Seconds(), labels)
	metrics.ObserveHistogram("sniff_sample_bytes", float64(len(sample)), nil)

	s.logger.Printf("sniff: strategy=%s delimiter=%q quote=%q skipinitialspace=%v sample_bytes=%d",
		strategy, runeLabel(d.Delimiter), runeLabel(d.Quote), d.SkipInitialSpace, len(sample))

	return d, nil
}

// Dialect returns the last sniffed dialect and whether there is one.
func (s *Sniffer) Dialect() (dialect.Dialect, bool) {
	return s.dialect, s.sniffed
}

// Strategy returns the detector that produced the last dialect.
func (s *Sniffer) Strategy() Strategy { return s.strategy }

// HasHeaders runs header detection on the input and dialect of the last
// Sniff call. The input must implement io.Seeker.
func (s *Sniffer) HasHeaders() (bool, error) {
	if !s.sniffed {
		return false, ErrNoDialect
	}
	rs, ok := s.src.(io.ReadSeeker)
	if !ok {
		return false, fmt.Errorf("%w: %T does not implement io.Seeker", ErrNotSeekable, s.src)
	}

	has, err := hasHeaders(rs, s.dialect, s.headerRows)
	if err != nil {
		return false, err
	}

	metrics.IncCounter("sniff_header_total", 1, metrics.Labels{"result": fmt.Sprint(has)})
	s.logger.Printf("sniff: has_header=%v", has)
	return has, nil
}

// RegisterDialect publishes the last sniffed dialect in the process-wide
// dialect table. An empty name registers it as "sniffed". Existing entries
// are overwritten.
func (s *Sniffer) RegisterDialect(name string) error {
	if !s.sniffed {
		return ErrNoDialect
	}
	if strings.TrimSpace(name) == "" {
		name = dialect.SniffedName
	}
	return dialect.Register(name, s.dialect)
}

// readSample reads at most n bytes. When the input continues past the sample
// the trailing partial line is dropped, so detectors never score a cut-off
// row. A sample without any newline is kept whole.
func readSample(r io.Reader, n int) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, int64(n)+1))
	if err != nil {
		return "", err
	}
	if len(b) <= n {
		return string(b), nil
	}
	b = b[:n]
	if i := strings.LastIndexByte(string(b), '\n'); i >= 0 {
		b = b[:i+1]
	}
	return string(b), nil
}

func runeLabel(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}
