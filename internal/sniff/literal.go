package sniff

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of literal types a cell can be classified as.
type Kind int

const (
	// KindNone means the cell is not a recognised literal.
	KindNone Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	default:
		return "none"
	}
}

// classify reports the literal kind of cell.
//
// Parentheses are removed and surrounding blanks trimmed first. The accepted
// grammar, tried in order:
//   - integer: optional sign, decimal or 0x/0o/0b prefixed digits
//   - float: optional sign, digits with '.', and/or an exponent
//   - boolean: True or False
//   - string: text enclosed in matching ' or " with no inner quote of that kind
//
// Integers or floats outside the 64-bit range are not literals. Nothing else
// is evaluated.
func classify(cell string) Kind {
	s := strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return -1
		}
		return r
	}, cell)
	s = strings.Trim(s, " \t")
	if s == "" {
		return KindNone
	}

	// ParseInt with base 0 accepts digit separators; literals here do not.
	numeric := !strings.ContainsRune(s, '_')

	if numeric {
		if _, err := strconv.ParseInt(s, 0, 64); err == nil {
			return KindInteger
		} else if errors.Is(err, strconv.ErrRange) {
			return KindNone
		}
	}

	if numeric && looksDecimal(s) {
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return KindFloat
		} else if errors.Is(err, strconv.ErrRange) {
			return KindNone
		}
	}

	if s == "True" || s == "False" {
		return KindBool
	}

	if isQuotedLiteral(s) {
		return KindString
	}
	return KindNone
}

// looksDecimal rejects what ParseFloat accepts but a numeric literal is not:
// inf, nan, hex floats and underscores.
func looksDecimal(s string) bool {
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '.', r == '+', r == '-', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return digits
}

func isQuotedLiteral(s string) bool {
	if len(s) < 2 {
		return false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return false
	}
	return !strings.ContainsRune(s[1:len(s)-1], rune(q))
}

// constructible reports whether a value of kind k can be built from text, the
// way a header cell is checked against a typed column. Empty text always
// succeeds (zero-value construction).
func constructible(k Kind, text string) bool {
	if strings.Trim(text, " \t") == "" {
		return true
	}
	got := classify(text)
	switch k {
	case KindInteger:
		switch got {
		case KindInteger, KindFloat, KindBool:
			return true
		case KindString:
			_, err := strconv.ParseInt(strings.TrimSpace(unquote(text)), 10, 64)
			return err == nil
		}
		return false
	case KindFloat:
		switch got {
		case KindInteger, KindFloat, KindBool:
			return true
		case KindString:
			_, err := strconv.ParseFloat(strings.TrimSpace(unquote(text)), 64)
			return err == nil
		}
		return false
	case KindBool, KindString:
		return got != KindNone
	default:
		return false
	}
}

func unquote(text string) string {
	s := strings.Trim(text, " \t()")
	if isQuotedLiteral(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// shape is the per-column signature used by header detection: a literal kind,
// or, for non-literals, the cell length in characters.
type shape struct {
	kind   Kind
	length int
}

func shapeOf(cell string) shape {
	if k := classify(cell); k != KindNone {
		return shape{kind: k}
	}
	return shape{length: utf8.RuneCountInString(cell)}
}

func (s shape) isLength() bool { return s.kind == KindNone }
