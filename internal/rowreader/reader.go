// Package rowreader splits delimited text into records for a known dialect.
//
// encoding/csv fixes the quote character to '"'; sniffed dialects may quote
// with an apostrophe and may have no delimiter at all, so this reader takes every
// character from its Config.
package rowreader

import (
	"bufio"
	"io"
	"strings"

	"csvsniff/internal/dialect"
)

// Config is the subset of a dialect the reader needs. Zero runes are absent.
type Config struct {
	Delimiter        rune
	Quote            rune
	Escape           rune
	DoubleQuote      bool
	SkipInitialSpace bool
}

// ConfigFor returns the reader settings for d.
//
// Double quoting is always enabled for reading: a sniffed dialect does not
// know whether the source doubles its quotes, and reading "" as one quote is
// harmless when it never occurs.
func ConfigFor(d dialect.Dialect) Config {
	return Config{
		Delimiter:        d.Delimiter,
		Quote:            d.Quote,
		Escape:           d.Escape,
		DoubleQuote:      true,
		SkipInitialSpace: d.SkipInitialSpace,
	}
}

type state int

const (
	startRecord state = iota
	startField
	escapedChar
	inField
	inQuotedField
	escapeInQuotedField
	quoteInQuotedField
)

// Reader reads records from an io.Reader.
//
// Behavior:
//   - Line endings may be "\n", "\r\n" or "\r".
//   - A blank line yields an empty (non-nil) record.
//   - Quoted fields may span lines.
//   - Malformed quoting is read leniently: characters after a closing quote
//     are kept, and an unterminated quoted field ends at EOF.
type Reader struct {
	cfg Config
	br  *bufio.Reader

	line int
}

// New returns a Reader over r.
func New(r io.Reader, cfg Config) *Reader {
	return &Reader{cfg: cfg, br: bufio.NewReader(r)}
}

// Line returns the number of physical lines consumed so far.
func (r *Reader) Line() int { return r.line }

// Read returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Read() ([]string, error) {
	var (
		fields []string
		field  strings.Builder
		st     = startRecord
	)

	saveField := func() {
		fields = append(fields, field.String())
		field.Reset()
	}

	for {
		c, _, err := r.br.ReadRune()
		if err == io.EOF {
			if st == startRecord {
				return nil, io.EOF
			}
			saveField()
			return fields, nil
		}
		if err != nil {
			return nil, err
		}

		switch st {
		case startRecord:
			if isEOL(c) {
				r.endLine(c)
				return []string{}, nil
			}
			st = startField
			fallthrough

		case startField:
			switch {
			case isEOL(c):
				saveField()
				r.endLine(c)
				return fields, nil
			case r.isQuote(c):
				st = inQuotedField
			case r.isEscape(c):
				st = escapedChar
			case c == ' ' && r.cfg.SkipInitialSpace:
				// skip
			case r.isDelimiter(c):
				saveField()
			default:
				field.WriteRune(c)
				st = inField
			}

		case escapedChar:
			field.WriteRune(c)
			st = inField

		case inField:
			switch {
			case isEOL(c):
				saveField()
				r.endLine(c)
				return fields, nil
			case r.isEscape(c):
				st = escapedChar
			case r.isDelimiter(c):
				saveField()
				st = startField
			default:
				field.WriteRune(c)
			}

		case inQuotedField:
			switch {
			case r.isEscape(c):
				st = escapeInQuotedField
			case r.isQuote(c):
				if r.cfg.DoubleQuote {
					st = quoteInQuotedField
				} else {
					st = inField
				}
			default:
				if c == '\n' {
					r.line++
				}
				field.WriteRune(c)
			}

		case escapeInQuotedField:
			field.WriteRune(c)
			st = inQuotedField

		case quoteInQuotedField:
			switch {
			case r.isQuote(c):
				field.WriteRune(c)
				st = inQuotedField
			case r.isDelimiter(c):
				saveField()
				st = startField
			case isEOL(c):
				saveField()
				r.endLine(c)
				return fields, nil
			default:
				field.WriteRune(c)
				st = inField
			}
		}
	}
}

// ReadAll reads up to limit records (all when limit <= 0).
func (r *Reader) ReadAll(limit int) ([][]string, error) {
	var out [][]string
	for limit <= 0 || len(out) < limit {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// endLine consumes the '\n' of a "\r\n" pair.
func (r *Reader) endLine(c rune) {
	r.line++
	if c != '\r' {
		return
	}
	next, _, err := r.br.ReadRune()
	if err != nil {
		return
	}
	if next != '\n' {
		_ = r.br.UnreadRune()
	}
}

func (r *Reader) isDelimiter(c rune) bool { return r.cfg.Delimiter != 0 && c == r.cfg.Delimiter }
func (r *Reader) isQuote(c rune) bool     { return r.cfg.Quote != 0 && c == r.cfg.Quote }
func (r *Reader) isEscape(c rune) bool    { return r.cfg.Escape != 0 && c == r.cfg.Escape }

func isEOL(c rune) bool { return c == '\n' || c == '\r' }
