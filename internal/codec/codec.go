// Package codec validates encoded image payloads.
//
// The pipeline never re-encodes pixels: a payload is decoded only to prove
// it is a readable image and to learn its dimensions, and the original
// bytes are what end up in the record.
package codec

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrReadOrDecode classifies every failure to read or decode a file.
var ErrReadOrDecode = stderrors.New("read or decode failed")

// DefaultFormat is recorded when the format cannot be derived from the
// file name.
const DefaultFormat = "JPEG"

// Image describes a decoded payload.
type Image struct {
	Width  int
	Height int
	Format string // "PNG", "JPEG", ...
}

// Codec decodes one payload. Implementations must be safe to call from
// one goroutine at a time; the pipeline gives every worker its own value.
type Codec interface {
	Decode(name string, data []byte) (Image, error)
}

// Error wraps a read or decode failure for one path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrReadOrDecode.
func (e *Error) Is(target error) bool { return target == ErrReadOrDecode }

// Imaging decodes with github.com/disintegration/imaging, which registers
// JPEG, PNG, GIF, TIFF and BMP decoders. It holds no mutable state.
type Imaging struct {
	// ExpectSize, when positive, rejects images whose width or height
	// differ from it.
	ExpectSize int
}

// Decode implements [Codec].
func (c Imaging) Decode(name string, data []byte) (Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, errors.Wrap(err, "decode")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Image{}, errors.Errorf("decode: empty image %dx%d", b.Dx(), b.Dy())
	}
	if c.ExpectSize > 0 && (b.Dx() != c.ExpectSize || b.Dy() != c.ExpectSize) {
		return Image{}, errors.Errorf("unexpected size %dx%d (want %dx%d)", b.Dx(), b.Dy(), c.ExpectSize, c.ExpectSize)
	}
	return Image{Width: b.Dx(), Height: b.Dy(), Format: FormatOf(name)}, nil
}

// FormatOf returns the upper-case format name implied by the file
// extension, or DefaultFormat.
func FormatOf(name string) string {
	f, err := imaging.FormatFromFilename(filepath.Base(name))
	if err != nil {
		return DefaultFormat
	}
	return f.String()
}

// Load reads path and decodes it with c. Both the raw bytes and the
// decoded description are returned; any failure is an *Error.
func Load(c Codec, path string) ([]byte, Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Image{}, &Error{Path: path, Err: errors.Wrap(err, "read")}
	}
	img, err := c.Decode(path, data)
	if err != nil {
		return nil, Image{}, &Error{Path: path, Err: err}
	}
	return data, img, nil
}
