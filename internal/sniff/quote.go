package sniff

import (
	"github.com/dlclark/regexp2"
)

// quotePatterns look for text enclosed between two identical quotes (the
// probable quote character) that is preceded and/or followed by the same
// character (the probable delimiter), e.g. ,'some text',
//
// They are tried in order and the first one that matches anywhere wins.
// Backreferences (\k<quote>, \k<delim>) are why these run on regexp2.
var quotePatterns = []*regexp2.Regexp{
	// ,".*?",
	mustQuotePattern(`(?<delim>[^\w\n"'])(?<space> ?)(?<quote>["']).*?\k<quote>\k<delim>`),
	//  ".*?",
	mustQuotePattern(`(?:^|\n)(?<quote>["']).*?\k<quote>(?<delim>[^\w\n"'])(?<space> ?)`),
	// ,".*?"
	mustQuotePattern(`(?<delim>[^\w\n"'])(?<space> ?)(?<quote>["']).*?\k<quote>(?:$|\n)`),
	//  ".*?" (no delimiter, no space)
	mustQuotePattern(`(?:^|\n)(?<quote>["']).*?\k<quote>(?:$|\n)`),
}

func mustQuotePattern(expr string) *regexp2.Regexp {
	return regexp2.MustCompile(expr, regexp2.Singleline|regexp2.Multiline)
}

// quoteGuess is the result of the co-occurrence detector.
//
// found is false when no pattern matched; the delimiter could not be
// determined and frequency analysis should run. When found is true a zero
// delimiter means the sample is a single column.
type quoteGuess struct {
	quote            rune
	delimiter        rune
	skipInitialSpace bool
	found            bool
}

// tally counts characters and remembers the order they were first seen.
type tally struct {
	counts map[rune]int
	order  []rune
}

func newTally() *tally { return &tally{counts: map[rune]int{}} }

func (t *tally) add(r rune) {
	if _, ok := t.counts[r]; !ok {
		t.order = append(t.order, r)
	}
	t.counts[r]++
}

// best returns the character with the highest count. Ties go to the character
// seen first in the sample.
func (t *tally) best() (rune, int) {
	var (
		winner rune
		n      int
	)
	for _, r := range t.order {
		if c := t.counts[r]; c > n {
			winner, n = r, c
		}
	}
	return winner, n
}

func (t *tally) empty() bool { return len(t.order) == 0 }

// guessQuoteAndDelimiter runs the co-occurrence detector over sample.
func guessQuoteAndDelimiter(sample string) (quoteGuess, error) {
	var (
		re      *regexp2.Regexp
		matches []*regexp2.Match
	)
	for _, p := range quotePatterns {
		ms, err := findAll(p, sample)
		if err != nil {
			return quoteGuess{}, err
		}
		if len(ms) > 0 {
			re, matches = p, ms
			break
		}
	}
	if len(matches) == 0 {
		return quoteGuess{}, nil
	}

	hasDelim := groupNumber(re, "delim") >= 0
	hasSpace := groupNumber(re, "space") >= 0

	quotes := newTally()
	delims := newTally()
	spaces := 0
	for _, m := range matches {
		if q := groupRune(m, "quote"); q != 0 {
			quotes.add(q)
		}
		if !hasDelim {
			continue
		}
		if d := groupRune(m, "delim"); d != 0 {
			delims.add(d)
		}
		if hasSpace && m.GroupByName("space").Length > 0 {
			spaces++
		}
	}

	g := quoteGuess{found: true}
	g.quote, _ = quotes.best()

	if delims.empty() {
		// A single column of quoted data.
		return g, nil
	}

	delim, n := delims.best()
	g.skipInitialSpace = n == spaces
	if delim == '\n' {
		// A single column. Unreachable with the patterns above, whose
		// delimiter class excludes '\n'.
		delim = 0
	}
	g.delimiter = delim
	return g, nil
}

// findAll returns the successive non-overlapping matches of re in s.
func findAll(re *regexp2.Regexp, s string) ([]*regexp2.Match, error) {
	var out []*regexp2.Match
	m, err := re.FindStringMatch(s)
	for m != nil && err == nil {
		out = append(out, m)
		m, err = re.FindNextMatch(m)
	}
	return out, err
}

func groupNumber(re *regexp2.Regexp, name string) int {
	return re.GroupNumberFromName(name)
}

func groupRune(m *regexp2.Match, name string) rune {
	g := m.GroupByName(name)
	if g == nil || g.Length == 0 {
		return 0
	}
	return g.Runes()[0]
}
