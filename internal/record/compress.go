package record

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how a whole shard stream is compressed. GZIP and
// ZLIB match TensorFlow's TFRecord compression types.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZlib Compression = "zlib"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts the names above case-insensitively; the empty
// string means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionGzip, CompressionZlib, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("invalid compression %q (use none, gzip, zlib or zstd)", s)
	}
}

// NewWriter wraps w. Closing the returned writer flushes the compressor
// but never closes w.
func (c Compression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case CompressionZlib:
		return zlib.NewWriterLevel(w, zlib.DefaultCompression)
	case CompressionZstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedDefault),
		)
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

// NewReader wraps r for reading a stream written with c.
func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone, "":
		return io.NopCloser(r), nil
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionZlib:
		return zlib.NewReader(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", string(c))
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
