// Package dialect describes the row-formatting conventions of a delimited text
// table and keeps the process-wide table of named dialects.
//
// A Dialect is a plain value. Runes are used for every single-character
// setting; the zero rune means "absent" (for example a sniffed single-column
// file has no delimiter).
package dialect

import (
	"errors"
	"fmt"
	"strings"
)

// Quoting selects when a writer quotes fields.
type Quoting int

const (
	// QuoteMinimal quotes only fields that contain the delimiter, the quote
	// character, or a line break.
	QuoteMinimal Quoting = iota
	// QuoteAll quotes every field.
	QuoteAll
	// QuoteNonNumeric quotes every field that is not a number.
	QuoteNonNumeric
	// QuoteNone never quotes; special characters are escaped instead.
	QuoteNone
)

// String returns the config/storage spelling of q.
func (q Quoting) String() string {
	switch q {
	case QuoteMinimal:
		return "minimal"
	case QuoteAll:
		return "all"
	case QuoteNonNumeric:
		return "nonnumeric"
	case QuoteNone:
		return "none"
	default:
		return fmt.Sprintf("quoting(%d)", int(q))
	}
}

// ParseQuoting is the inverse of Quoting.String. It is case-insensitive and
// treats the empty string as QuoteMinimal.
func ParseQuoting(s string) (Quoting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minimal":
		return QuoteMinimal, nil
	case "all":
		return QuoteAll, nil
	case "nonnumeric", "non_numeric":
		return QuoteNonNumeric, nil
	case "none":
		return QuoteNone, nil
	default:
		return QuoteMinimal, fmt.Errorf("dialect: unknown quoting %q", s)
	}
}

// DefaultLineTerminator is the terminator assigned to sniffed dialects.
const DefaultLineTerminator = "\r\n"

// SniffedName is the name carried by dialects produced by the sniffer and the
// default registration name.
const SniffedName = "sniffed"

// Dialect is a bundle of row-formatting conventions.
type Dialect struct {
	Name             string
	Delimiter        rune
	Quote            rune
	Escape           rune
	DoubleQuote      bool
	SkipInitialSpace bool
	LineTerminator   string
	Quoting          Quoting

	// Sniffed marks dialects inferred from sample data rather than declared.
	Sniffed bool
}

// HasDelimiter reports whether d splits rows into more than one field.
func (d Dialect) HasDelimiter() bool { return d.Delimiter != 0 }

// HasQuote reports whether d has a quote character.
func (d Dialect) HasQuote() bool { return d.Quote != 0 }

// Equal compares the formatting fields of two dialects. Name and Sniffed are
// labels and are ignored.
func (d Dialect) Equal(o Dialect) bool {
	return d.Delimiter == o.Delimiter &&
		d.Quote == o.Quote &&
		d.Escape == o.Escape &&
		d.DoubleQuote == o.DoubleQuote &&
		d.SkipInitialSpace == o.SkipInitialSpace &&
		d.LineTerminator == o.LineTerminator &&
		d.Quoting == o.Quoting
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("dialect did not validate")

// Validate checks that d is self-consistent enough to configure a row reader
// or writer. All problems are reported in one error.
//
// An absent delimiter is accepted: it describes a single-column table.
func Validate(d Dialect) error {
	var problems []string

	if isLineBreak(d.Delimiter) {
		problems = append(problems, "delimiter must not be a line break")
	}
	if d.Quote == 0 {
		if d.Quoting != QuoteNone {
			problems = append(problems, "quote character not set")
		}
	} else if isLineBreak(d.Quote) {
		problems = append(problems, "quote character must not be a line break")
	}
	if d.Delimiter != 0 && d.Delimiter == d.Quote {
		problems = append(problems, "delimiter and quote character must differ")
	}
	if d.Escape != 0 {
		if isLineBreak(d.Escape) {
			problems = append(problems, "escape character must not be a line break")
		}
		if d.Escape == d.Delimiter || d.Escape == d.Quote {
			problems = append(problems, "escape character must differ from delimiter and quote")
		}
	}
	if d.LineTerminator == "" {
		problems = append(problems, "line terminator not set")
	}
	switch d.Quoting {
	case QuoteMinimal, QuoteAll, QuoteNonNumeric:
	case QuoteNone:
		if d.Escape == 0 {
			problems = append(problems, "escape character required when quoting is none")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown quoting mode %d", int(d.Quoting)))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, ", "))
}

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }

// Excel is the conventional comma-separated dialect.
var Excel = Dialect{
	Name:           "excel",
	Delimiter:      ',',
	Quote:          '"',
	DoubleQuote:    true,
	LineTerminator: DefaultLineTerminator,
	Quoting:        QuoteMinimal,
}

// ExcelTab is Excel with tab-separated fields.
var ExcelTab = Dialect{
	Name:           "excel-tab",
	Delimiter:      '\t',
	Quote:          '"',
	DoubleQuote:    true,
	LineTerminator: DefaultLineTerminator,
	Quoting:        QuoteMinimal,
}
