package sniff

import (
	"strings"
)

// asciiChars is the number of 7-bit character codes examined (0..126).
const asciiChars = 127

const (
	maxChunkLines      = 10
	consistencyStart   = 1.0
	consistencyFloor   = 0.9
	consistencyRelaxBy = 0.01
)

// DefaultPreferred is the tie-break order used when several characters are
// equally consistent.
var DefaultPreferred = []rune{',', '\t', ';', ' ', ':'}

// freqHist maps "occurrences on a line" to "number of lines with that many
// occurrences" for one character. order keeps occurrence counts in the order
// they were first observed.
type freqHist struct {
	lines map[int]int
	order []int
}

func (h *freqHist) add(occurrences int) {
	if h.lines == nil {
		h.lines = map[int]int{}
	}
	if _, ok := h.lines[occurrences]; !ok {
		h.order = append(h.order, occurrences)
	}
	h.lines[occurrences]++
}

// mode returns the occurrence count with the highest line tally (ties go to
// the count observed first) and its tally. When more than one count has been
// seen the tally is reduced by the tallies of all other counts, so a
// character with scattered counts scores lower. The result may be negative.
func (h *freqHist) mode() (occurrences, lines int) {
	best := h.order[0]
	for _, n := range h.order[1:] {
		if h.lines[n] > h.lines[best] {
			best = n
		}
	}
	adjusted := h.lines[best]
	for _, n := range h.order {
		if n != best {
			adjusted -= h.lines[n]
		}
	}
	return best, adjusted
}

// onlyZero reports whether the character never occurred on any line.
func (h *freqHist) onlyZero() bool {
	return len(h.order) == 1 && h.order[0] == 0
}

type charMode struct {
	occurrences int
	lines       int
	set         bool
}

// guessDelimiter finds the character whose per-line frequency is most
// consistent across the sample.
//
// The delimiter should occur the same number of times on each row, but
// malformed data may break that, so a consistency threshold is relaxed from
// 1.0 down to 0.9. Lines are examined in chunks; another chunk is added to
// the window only while no candidate has emerged.
//
// found is false when no character qualifies. When several qualify the
// preferred list decides; failing that, the lowest character code wins.
func guessDelimiter(sample string, preferred []rune) (delim rune, skipInitialSpace bool, found bool) {
	var lines []string
	for _, l := range strings.Split(sample, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}

	chunk := min(maxChunkLines, len(lines))

	var (
		hist       [asciiChars]freqHist
		modes      [asciiChars]charMode
		candidates [asciiChars]bool
		nCand      int
	)

	iteration := 0
	start, end := 0, chunk
	for start < len(lines) {
		iteration++
		for _, line := range lines[start:min(end, len(lines))] {
			var counts [asciiChars]int
			trimmed := strings.TrimSpace(line)
			for i := 0; i < len(trimmed); i++ {
				if b := trimmed[i]; b < asciiChars {
					counts[b]++
				}
			}
			for c := range hist {
				hist[c].add(counts[c])
			}
		}

		for c := range hist {
			h := &hist[c]
			if h.onlyZero() {
				continue
			}
			occ, n := h.mode()
			modes[c] = charMode{occurrences: occ, lines: n, set: true}
		}

		total := float64(chunk * iteration)
		for consistency := consistencyStart; nCand == 0 && consistency >= consistencyFloor; consistency -= consistencyRelaxBy {
			for c, m := range modes {
				if !m.set || m.occurrences <= 0 || m.lines <= 0 {
					continue
				}
				if float64(m.lines)/total >= consistency && !candidates[c] {
					candidates[c] = true
					nCand++
				}
			}
		}

		if nCand == 1 {
			for c, ok := range candidates {
				if ok {
					d := rune(c)
					return d, skipsInitialSpace(lines[0], d), true
				}
			}
		}
		if nCand > 1 {
			// The candidate set is final once it has more than one member.
			break
		}

		start = end
		end += chunk
	}

	if nCand == 0 {
		return 0, false, false
	}

	for _, d := range preferred {
		if d >= 0 && d < asciiChars && candidates[d] {
			return d, skipsInitialSpace(lines[0], d), true
		}
	}
	for c, ok := range candidates {
		if ok {
			d := rune(c)
			return d, skipsInitialSpace(lines[0], d), true
		}
	}
	return 0, false, false
}

// skipsInitialSpace reports whether every delimiter on line is followed by a
// space.
func skipsInitialSpace(line string, delim rune) bool {
	d := string(delim)
	return strings.Count(line, d) == strings.Count(line, d+" ")
}
