package dialect

import (
	"fmt"
	"unicode/utf8"
)

// Config is the serialized form of a Dialect used in JSON output, YAML config
// files and the storage catalog. Single characters are carried as strings;
// the empty string means absent.
type Config struct {
	Name             string `json:"name,omitempty" yaml:"name,omitempty"`
	Delimiter        string `json:"delimiter" yaml:"delimiter"`
	Quote            string `json:"quotechar" yaml:"quotechar"`
	Escape           string `json:"escapechar,omitempty" yaml:"escapechar,omitempty"`
	DoubleQuote      bool   `json:"doublequote" yaml:"doublequote"`
	SkipInitialSpace bool   `json:"skipinitialspace" yaml:"skipinitialspace"`
	LineTerminator   string `json:"lineterminator" yaml:"lineterminator"`
	Quoting          string `json:"quoting" yaml:"quoting"`
	Sniffed          bool   `json:"sniffed,omitempty" yaml:"sniffed,omitempty"`
}

// ToConfig converts d to its serialized form.
func (d Dialect) ToConfig() Config {
	return Config{
		Name:             d.Name,
		Delimiter:        runeString(d.Delimiter),
		Quote:            runeString(d.Quote),
		Escape:           runeString(d.Escape),
		DoubleQuote:      d.DoubleQuote,
		SkipInitialSpace: d.SkipInitialSpace,
		LineTerminator:   d.LineTerminator,
		Quoting:          d.Quoting.String(),
		Sniffed:          d.Sniffed,
	}
}

// Dialect converts c back to a Dialect. It fails when a character field holds
// more than one character or the quoting mode is unknown; it does not call
// Validate.
func (c Config) Dialect() (Dialect, error) {
	delim, err := singleRune("delimiter", c.Delimiter)
	if err != nil {
		return Dialect{}, err
	}
	quote, err := singleRune("quotechar", c.Quote)
	if err != nil {
		return Dialect{}, err
	}
	esc, err := singleRune("escapechar", c.Escape)
	if err != nil {
		return Dialect{}, err
	}
	q, err := ParseQuoting(c.Quoting)
	if err != nil {
		return Dialect{}, err
	}
	return Dialect{
		Name:             c.Name,
		Delimiter:        delim,
		Quote:            quote,
		Escape:           esc,
		DoubleQuote:      c.DoubleQuote,
		SkipInitialSpace: c.SkipInitialSpace,
		LineTerminator:   c.LineTerminator,
		Quoting:          q,
		Sniffed:          c.Sniffed,
	}, nil
}

func runeString(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}

func singleRune(field, s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("dialect: %s must be a one-character string, got %q", field, s)
	}
	return r, nil
}
