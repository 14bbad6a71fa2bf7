package record

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// ErrCorrupt is returned by [Reader] when a frame fails its checksum or
// the stream ends inside a frame.
var ErrCorrupt = errors.New("corrupt record frame")

const (
	headerLen  = 12
	footerLen  = 4
	maskDelta  = 0xa282ead8
	maxPayload = 1 << 31
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, castagnoli)
	return ((c >> 15) | (c << 17)) + maskDelta
}

// Writer appends framed records to an underlying stream.
type Writer struct {
	w     io.Writer
	hdr   [headerLen]byte
	ftr   [footerLen]byte
	count int
	bytes int64
}

// NewWriter returns a Writer that frames records onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRaw frames and writes one already serialized payload.
func (w *Writer) WriteRaw(payload []byte) error {
	binary.LittleEndian.PutUint64(w.hdr[:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(w.hdr[8:], maskedCRC(w.hdr[:8]))
	binary.LittleEndian.PutUint32(w.ftr[:], maskedCRC(payload))

	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := w.w.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	if _, err := w.w.Write(w.ftr[:]); err != nil {
		return errors.Wrap(err, "write frame footer")
	}
	w.count++
	w.bytes += int64(headerLen + len(payload) + footerLen)
	return nil
}

// Write serializes r and writes it as one frame.
func (w *Writer) Write(r *Record) error {
	return w.WriteRaw(r.Marshal())
}

// Count returns the number of frames written.
func (w *Writer) Count() int { return w.count }

// Bytes returns the uncompressed number of bytes written.
func (w *Writer) Bytes() int64 { return w.bytes }

// Reader reads framed records from a stream.
type Reader struct {
	r   *bufio.Reader
	hdr [headerLen]byte
	ftr [footerLen]byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16)}
}

// NextRaw returns the next verified payload. It returns io.EOF at a clean
// end of stream and an error wrapping ErrCorrupt otherwise.
func (r *Reader) NextRaw() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(ErrCorrupt, "truncated header")
	}
	if binary.LittleEndian.Uint32(r.hdr[8:]) != maskedCRC(r.hdr[:8]) {
		return nil, errors.Wrap(ErrCorrupt, "length checksum mismatch")
	}
	n := binary.LittleEndian.Uint64(r.hdr[:8])
	if n > maxPayload {
		return nil, errors.Wrapf(ErrCorrupt, "payload length %d too large", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "truncated payload")
	}
	if _, err := io.ReadFull(r.r, r.ftr[:]); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "truncated footer")
	}
	if binary.LittleEndian.Uint32(r.ftr[:]) != maskedCRC(payload) {
		return nil, errors.Wrap(ErrCorrupt, "payload checksum mismatch")
	}
	return payload, nil
}

// Next returns the next decoded record, or io.EOF.
func (r *Reader) Next() (*Record, error) {
	payload, err := r.NextRaw()
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}
