package record

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func sampleRecord(name string, label int) *Record {
	return New("/data/label-1/"+name, []byte("image-"+name), []byte("mask-"+name), label, "label-1", 704, 704, "PNG")
}

func TestNew_FixedFields(t *testing.T) {
	r := sampleRecord("tumor_1.png", 1)
	if r.Filename != "tumor_1.png" {
		t.Errorf("Filename = %q, want base name", r.Filename)
	}
	if r.Colorspace != "RGB" || r.Channels != 3 {
		t.Errorf("Colorspace/Channels = %q/%d, want RGB/3", r.Colorspace, r.Channels)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	want := sampleRecord("tumor_1.png", 1)
	got, err := Unmarshal(want.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	assertRecordEqual(t, got, want)
}

func TestMarshal_RoundTripWithoutLabelText(t *testing.T) {
	want := sampleRecord("normal_1.png", 0)
	want.LabelText = ""
	want.Image = []byte{}
	got, err := Unmarshal(want.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	assertRecordEqual(t, got, want)
}

func TestMarshal_Deterministic(t *testing.T) {
	a := sampleRecord("tumor_1.png", 1).Marshal()
	b := sampleRecord("tumor_1.png", 1).Marshal()
	if !bytes.Equal(a, b) {
		t.Error("equal records must serialize to equal bytes")
	}
}

func TestUnmarshal_MissingFeature(t *testing.T) {
	if _, err := Unmarshal(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Unmarshal(nil) error = %v, want ErrMalformed", err)
	}
	if _, err := Unmarshal([]byte{0x0a, 0xff}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Unmarshal(truncated) error = %v, want ErrMalformed", err)
	}
}

func TestWriterReader_AllCompressions(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZlib, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			cw, err := c.NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			w := NewWriter(cw)
			records := []*Record{
				sampleRecord("tumor_1.png", 1),
				sampleRecord("normal_2.png", 0),
				sampleRecord("tumor_3.png", 1),
			}
			for _, r := range records {
				if err := w.Write(r); err != nil {
					t.Fatal(err)
				}
			}
			if err := cw.Close(); err != nil {
				t.Fatal(err)
			}
			if w.Count() != 3 {
				t.Errorf("Count = %d, want 3", w.Count())
			}

			cr, err := c.NewReader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			defer cr.Close()
			rd := NewReader(cr)
			for i, want := range records {
				got, err := rd.Next()
				if err != nil {
					t.Fatalf("record %d: %v", i, err)
				}
				assertRecordEqual(t, got, want)
			}
			if _, err := rd.Next(); err != io.EOF {
				t.Errorf("after last record: err = %v, want io.EOF", err)
			}
		})
	}
}

func TestReader_EmptyStream(t *testing.T) {
	if _, err := NewReader(bytes.NewReader(nil)).NextRaw(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReader_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteRaw([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"flipped length", func(b []byte) []byte { b[0] ^= 1; return b }},
		{"flipped payload", func(b []byte) []byte { b[headerLen] ^= 1; return b }},
		{"flipped footer", func(b []byte) []byte { b[len(b)-1] ^= 1; return b }},
		{"truncated header", func(b []byte) []byte { return b[:5] }},
		{"truncated payload", func(b []byte) []byte { return b[:headerLen+2] }},
		{"truncated footer", func(b []byte) []byte { return b[:len(b)-2] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			_, err := NewReader(bytes.NewReader(b)).NextRaw()
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

// TestMaskedCRC checks the CRC-32C polynomial against its standard check
// value and that masking is reversible.
func TestMaskedCRC(t *testing.T) {
	c := maskedCRC([]byte("123456789"))
	rot := c - maskDelta
	raw := (rot >> 17) | (rot << 15)
	if raw != 0xe3069283 {
		t.Errorf("crc32c(\"123456789\") = %#x, want %#x", raw, 0xe3069283)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"GZIP", CompressionGzip, false},
		{" zlib ", CompressionZlib, false},
		{"zstd", CompressionZstd, false},
		{"lz4", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func assertRecordEqual(t *testing.T, got, want *Record) {
	t.Helper()
	if got.Filename != want.Filename || got.Label != want.Label || got.LabelText != want.LabelText ||
		got.Height != want.Height || got.Width != want.Width || got.Colorspace != want.Colorspace ||
		got.Channels != want.Channels || got.Format != want.Format {
		t.Errorf("metadata mismatch:\n got  %+v\n want %+v", got, want)
	}
	if !bytes.Equal(got.Image, want.Image) {
		t.Errorf("image bytes differ")
	}
	if !bytes.Equal(got.Mask, want.Mask) {
		t.Errorf("mask bytes differ")
	}
}
