package source

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// ToUTF8 converts a raw sample to UTF-8 and caps it at n bytes.
//
//   - A UTF-8 BOM is stripped.
//   - A UTF-16 BOM selects UTF-16 decoding (LE or BE); the BOM is dropped.
//   - Otherwise valid UTF-8 is returned unchanged and anything else is
//     decoded as Windows-1252.
//
// An incomplete trailing character, left behind when the sample was cut, is
// removed before and after decoding.
func ToUTF8(b []byte, n int) []byte {
	var out []byte
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		out = trimPartialRune(b[len(bomUTF8):])
	case bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		out = decodeUTF16(b)
	default:
		out = trimPartialRune(b)
		if !utf8.Valid(out) {
			// Windows-1252 maps every byte, so decoding cannot fail.
			out, _ = charmap.Windows1252.NewDecoder().Bytes(b)
		}
	}
	if n > 0 && len(out) > n {
		out = trimPartialRune(out[:n])
	}
	return out
}

func decodeUTF16(b []byte) []byte {
	// Drop an odd trailing byte and a dangling high surrogate.
	b = b[:len(b)&^1]
	if len(b) >= 4 {
		last := b[len(b)-2:]
		var unit uint16
		if bytes.HasPrefix(b, bomUTF16LE) {
			unit = uint16(last[0]) | uint16(last[1])<<8
		} else {
			unit = uint16(last[0])<<8 | uint16(last[1])
		}
		if unit >= 0xd800 && unit < 0xdc00 {
			b = b[:len(b)-2]
		}
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return nil
	}
	return out
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i]
		}
		break
	}
	return b
}

// trimPartialLine drops everything after the last '\n'. Text without a
// newline is returned unchanged.
func trimPartialLine(b []byte) []byte {
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[:i+1]
	}
	return b
}
