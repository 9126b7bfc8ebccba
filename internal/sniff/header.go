package sniff

import (
	"fmt"
	"io"
	"unicode/utf8"

	"csvsniff/internal/dialect"
	"csvsniff/internal/rowreader"
)

// DefaultHeaderRows is how many rows after the first are examined by header
// detection.
const DefaultHeaderRows = 21

// HasHeaders reports whether the first row of r looks like a header for d.
//
// r is rewound to the start before reading; a reader that cannot seek is a
// usage error reported as ErrNotSeekable.
func HasHeaders(r io.ReadSeeker, d dialect.Dialect) (bool, error) {
	return hasHeaders(r, d, DefaultHeaderRows)
}

// hasHeaders builds a per-column shape from the rows after the first. If a
// column keeps a single literal kind (say, integers) everywhere except the
// first row, the first row is presumed to be labels. Columns without a stable
// kind fall back to cell length: when every row but the first has the same
// length, that also points to a header. Each surviving column then votes and
// a strictly positive total means "header". A column that no regular row
// reached (a header-only file, say) votes for a header.
func hasHeaders(r io.ReadSeeker, d dialect.Dialect, maxRows int) (bool, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotSeekable, err)
	}

	rr := rowreader.New(r, rowreader.ConfigFor(d))

	header, err := rr.Read()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read header row: %w", err)
	}

	columns := len(header)
	shapes := make([]shape, columns)
	seen := make([]bool, columns)
	dropped := make([]bool, columns)

	checked := 0
	for checked < maxRows {
		row, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("read row %d: %w", rr.Line(), err)
		}
		checked++

		if len(row) != columns {
			// Irregular rows do not vote.
			continue
		}

		for col := 0; col < columns; col++ {
			if dropped[col] {
				continue
			}
			s := shapeOf(row[col])
			switch {
			case !seen[col]:
				shapes[col] = s
				seen[col] = true
			case shapes[col] != s:
				// Inconsistent column: out of consideration for good.
				dropped[col] = true
			}
		}
	}

	votes := 0
	for col := 0; col < columns; col++ {
		if dropped[col] {
			continue
		}
		if !seen[col] {
			// No row gave the column a shape, so the header cell cannot
			// match one.
			votes++
			continue
		}
		s := shapes[col]
		if s.isLength() {
			if utf8.RuneCountInString(header[col]) != s.length {
				votes++
			} else {
				votes--
			}
			continue
		}
		if !constructible(s.kind, header[col]) {
			votes++
		} else {
			votes--
		}
	}

	return votes > 0, nil
}
