package source

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression is the container format detected at the start of an input.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionBzip2
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

// Magic byte signatures.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// DetectCompression inspects the first bytes of br without consuming them.
func DetectCompression(br *bufio.Reader) (Compression, error) {
	header, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return CompressionNone, err
	}
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip, nil
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd, nil
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2, nil
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ, nil
	}
	return CompressionNone, nil
}

// Decompress wraps r with a reader for kind. CompressionNone passes r through.
func Decompress(r io.Reader, kind Compression) (io.ReadCloser, error) {
	switch kind {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case CompressionZstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return d.IOReadCloser(), nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %v", kind)
	}
}
