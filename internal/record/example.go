package record

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Feature keys of the serialized Example.
const (
	KeyHeight     = "image/height"
	KeyWidth      = "image/width"
	KeyColorspace = "image/colorspace"
	KeyChannels   = "image/channels"
	KeyLabel      = "image/class/label"
	KeyLabelText  = "image/class/text"
	KeyFormat     = "image/format"
	KeyFilename   = "image/filename"
	KeyImage      = "image/encoded"
	KeyMask       = "image/segmentation/class/encoded"
)

// Fixed metadata values.
const (
	Colorspace = "RGB"
	Channels   = 3
)

// ErrMalformed is returned when a payload is not a valid Example or lacks
// a required feature.
var ErrMalformed = errors.New("malformed example")

// Record is one image/mask pair with its metadata.
type Record struct {
	Filename   string // base name only
	Image      []byte // original encoded image bytes
	Mask       []byte // original encoded mask bytes
	Label      int
	LabelText  string
	Height     int
	Width      int
	Colorspace string
	Channels   int
	Format     string
}

// New builds a Record with the fixed colorspace and channel count. Only
// the base name of path is kept.
func New(path string, image, mask []byte, label int, labelText string, height, width int, format string) *Record {
	return &Record{
		Filename:   filepath.Base(path),
		Image:      image,
		Mask:       mask,
		Label:      label,
		LabelText:  labelText,
		Height:     height,
		Width:      width,
		Colorspace: Colorspace,
		Channels:   Channels,
		Format:     format,
	}
}

// feature mirrors tf.train.Feature for the two kinds used here.
type feature struct {
	bytes [][]byte
	ints  []int64
}

func bytesFeature(b []byte) feature  { return feature{bytes: [][]byte{b}} }
func stringFeature(s string) feature { return bytesFeature([]byte(s)) }
func int64Feature(v int) feature     { return feature{ints: []int64{int64(v)}} }

func (r *Record) features() map[string]feature {
	f := map[string]feature{
		KeyHeight:     int64Feature(r.Height),
		KeyWidth:      int64Feature(r.Width),
		KeyColorspace: stringFeature(r.Colorspace),
		KeyChannels:   int64Feature(r.Channels),
		KeyLabel:      int64Feature(r.Label),
		KeyFormat:     stringFeature(r.Format),
		KeyFilename:   stringFeature(r.Filename),
		KeyImage:      bytesFeature(r.Image),
		KeyMask:       bytesFeature(r.Mask),
	}
	if r.LabelText != "" {
		f[KeyLabelText] = stringFeature(r.LabelText)
	}
	return f
}

// Marshal serializes r as a tf.train.Example. Map entries are emitted in
// key order so equal records always produce equal bytes.
func (r *Record) Marshal() []byte {
	feats := r.features()
	keys := make([]string, 0, len(feats))
	for k := range feats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, feats[k].marshal())

		features = protowire.AppendTag(features, 1, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, features)
	return out
}

func (f feature) marshal() []byte {
	var list []byte
	var kind protowire.Number
	if f.ints != nil {
		kind = 3 // int64_list
		var packed []byte
		for _, v := range f.ints {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, 1, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	} else {
		kind = 1 // bytes_list
		for _, b := range f.bytes {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
	}
	out := protowire.AppendTag(nil, kind, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// Unmarshal parses a serialized Example produced by [Record.Marshal] (or
// by TensorFlow with the same feature keys).
func Unmarshal(b []byte) (*Record, error) {
	feats := map[string]feature{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		return walk(v, func(num protowire.Number, typ protowire.Type, entry []byte, _ uint64) error {
			if num != 1 || typ != protowire.BytesType {
				return nil
			}
			key, f, err := parseEntry(entry)
			if err != nil {
				return err
			}
			feats[key] = f
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r := &Record{}
	var missing []string
	getBytes := func(key string, dst *[]byte) {
		f, ok := feats[key]
		if !ok || len(f.bytes) == 0 {
			missing = append(missing, key)
			return
		}
		*dst = f.bytes[0]
	}
	getString := func(key string, dst *string) {
		var b []byte
		getBytes(key, &b)
		*dst = string(b)
	}
	getInt := func(key string, dst *int) {
		f, ok := feats[key]
		if !ok || len(f.ints) == 0 {
			missing = append(missing, key)
			return
		}
		*dst = int(f.ints[0])
	}

	getInt(KeyHeight, &r.Height)
	getInt(KeyWidth, &r.Width)
	getString(KeyColorspace, &r.Colorspace)
	getInt(KeyChannels, &r.Channels)
	getInt(KeyLabel, &r.Label)
	getString(KeyFormat, &r.Format)
	getString(KeyFilename, &r.Filename)
	getBytes(KeyImage, &r.Image)
	getBytes(KeyMask, &r.Mask)
	if f, ok := feats[KeyLabelText]; ok && len(f.bytes) > 0 {
		r.LabelText = string(f.bytes[0])
	}

	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrMalformed, "missing features %v", missing)
	}
	return r, nil
}

func parseEntry(entry []byte) (string, feature, error) {
	var key string
	var f feature
	err := walk(entry, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			key = string(v)
		case 2:
			var err error
			f, err = parseFeature(v)
			return err
		}
		return nil
	})
	return key, f, err
}

func parseFeature(b []byte) (feature, error) {
	var f feature
	err := walk(b, func(num protowire.Number, typ protowire.Type, list []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1: // bytes_list
			return walk(list, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num == 1 && typ == protowire.BytesType {
					f.bytes = append(f.bytes, v)
				}
				return nil
			})
		case 3: // int64_list, packed or not
			return walk(list, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
				if num != 1 {
					return nil
				}
				switch typ {
				case protowire.VarintType:
					f.ints = append(f.ints, int64(x))
				case protowire.BytesType:
					for len(v) > 0 {
						x, n := protowire.ConsumeVarint(v)
						if n < 0 {
							return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
						}
						f.ints = append(f.ints, int64(x))
						v = v[n:]
					}
				}
				return nil
			})
		}
		return nil
	})
	return f, err
}

// walk calls fn for every field of a protobuf message. Length-delimited
// values are passed as v, varints as x; other wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		var v []byte
		var x uint64
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		if typ == protowire.BytesType || typ == protowire.VarintType {
			if err := fn(num, typ, v, x); err != nil {
				return err
			}
		}
	}
	return nil
}
