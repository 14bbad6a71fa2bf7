package shard

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/backmassage/patchshard/internal/catalog"
	"github.com/backmassage/patchshard/internal/codec"
	"github.com/backmassage/patchshard/internal/pairing"
	"github.com/backmassage/patchshard/internal/partition"
	"github.com/backmassage/patchshard/internal/record"
)

const writeBufferSize = 1 << 20

// Logger is the subset of logging.Logger used while writing shards.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Skip(string, ...interface{})
	Debug(string, ...interface{})
}

// Observer is told about every catalog entry a worker finishes, whether it
// was written or skipped.
type Observer interface {
	Add(n int)
}

// Options are shared by every shard of one dataset.
type Options struct {
	OutputDir     string
	Dataset       string
	TotalShards   int
	Compression   record.Compression
	ProgressEvery int
}

// Skipped describes one catalog entry that produced no record.
type Skipped struct {
	Path   string `yaml:"path"`
	Reason string `yaml:"reason"`
}

// Result summarizes one finished shard.
type Result struct {
	Shard     int
	Path      string
	Start     int
	End       int
	Written   int
	Skipped   []Skipped
	Bytes     int64 // uncompressed record bytes
	FileBytes int64 // size on disk
}

// Writer writes the shards of one worker, one at a time. It owns its
// codec and counters and must not be shared between goroutines.
type Writer struct {
	worker   int
	assigned int
	opts     Options
	codec    codec.Codec
	resolver pairing.Resolver
	log      Logger
	observer Observer

	written int // cumulative across this worker's shards
}

// NewWriter returns the shard writer for worker, which was assigned
// assigned catalog entries in total. observer may be nil.
func NewWriter(worker, assigned int, c codec.Codec, r pairing.Resolver, opts Options, log Logger, observer Observer) *Writer {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 1000
	}
	return &Writer{
		worker:   worker,
		assigned: assigned,
		opts:     opts,
		codec:    c,
		resolver: r,
		log:      log,
		observer: observer,
	}
}

// Written returns the number of records this worker has written so far.
func (w *Writer) Written() int { return w.written }

// WriteShard writes the entries in [a.Start, a.End) to the shard file for
// a.Shard. The file is created even when the range is empty. The returned
// error is non-nil only for output failures or cancellation; in both cases
// no shard file is left behind.
func (w *Writer) WriteShard(ctx context.Context, a partition.Assignment, entries []catalog.Entry) (Result, error) {
	res := Result{
		Shard: a.Shard,
		Path:  Path(w.opts.OutputDir, w.opts.Dataset, a.Shard, w.opts.TotalShards),
		Start: a.Start,
		End:   a.End,
	}
	if a.Start < 0 || a.End > len(entries) || a.Start > a.End {
		return res, errors.Errorf("shard %d: range [%d, %d) outside catalog of %d", a.Shard, a.Start, a.End, len(entries))
	}

	tmp, err := os.CreateTemp(w.opts.OutputDir, filepath.Base(res.Path)+".tmp.*")
	if err != nil {
		return res, errors.Wrapf(err, "shard %d: create", a.Shard)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriterSize(tmp, writeBufferSize)
	cw, err := w.opts.Compression.NewWriter(buf)
	if err != nil {
		return res, errors.Wrapf(err, "shard %d: compressor", a.Shard)
	}
	rw := record.NewWriter(cw)

	for i := a.Start; i < a.End; i++ {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "shard %d interrupted at entry %d", a.Shard, i)
		}

		rec, skip := w.pair(entries[i])
		if skip != nil {
			res.Skipped = append(res.Skipped, *skip)
			w.observe()
			continue
		}
		if err := rw.Write(rec); err != nil {
			return res, errors.Wrapf(err, "shard %d", a.Shard)
		}
		res.Written++
		w.written++
		w.observe()

		if w.written%w.opts.ProgressEvery == 0 {
			w.log.Info("[worker %d] Processed %d of %d images in worker batch.", w.worker, w.written, w.assigned)
		}
	}

	if err := cw.Close(); err != nil {
		return res, errors.Wrapf(err, "shard %d: close compressor", a.Shard)
	}
	if err := buf.Flush(); err != nil {
		return res, errors.Wrapf(err, "shard %d: flush", a.Shard)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return res, errors.Wrapf(err, "shard %d: chmod", a.Shard)
	}
	if err := tmp.Sync(); err != nil {
		return res, errors.Wrapf(err, "shard %d: sync", a.Shard)
	}
	if err := tmp.Close(); err != nil {
		return res, errors.Wrapf(err, "shard %d: close", a.Shard)
	}
	if err := os.Rename(tmpName, res.Path); err != nil {
		return res, errors.Wrapf(err, "shard %d: rename", a.Shard)
	}
	committed = true

	res.Bytes = rw.Bytes()
	if fi, err := os.Stat(res.Path); err == nil {
		res.FileBytes = fi.Size()
	}
	return res, nil
}

// pair resolves, reads and validates one image/mask pair. A non-nil
// Skipped means the entry produced no record; the reason has been logged.
func (w *Writer) pair(e catalog.Entry) (*record.Record, *Skipped) {
	maskPath, err := w.resolver.ResolveMask(e.Path)
	if err != nil {
		return nil, w.skip(e.Path, err)
	}

	image, img, err := codec.Load(w.codec, e.Path)
	if err != nil {
		return nil, w.skip(e.Path, err)
	}
	mask, m, err := codec.Load(w.codec, maskPath)
	if err != nil {
		return nil, w.skip(maskPath, err)
	}
	if m.Width != img.Width || m.Height != img.Height {
		w.log.Warn("[worker %d] Mask %s is %dx%d but image is %dx%d",
			w.worker, filepath.Base(maskPath), m.Width, m.Height, img.Width, img.Height)
	}

	w.log.Debug("[worker %d] Paired %s with %s", w.worker, filepath.Base(e.Path), filepath.Base(maskPath))
	return record.New(e.Path, image, mask, e.Label, e.LabelName, img.Height, img.Width, img.Format), nil
}

func (w *Writer) skip(path string, err error) *Skipped {
	w.log.Skip("[worker %d] Skipping %s: %v", w.worker, path, err)
	return &Skipped{Path: path, Reason: err.Error()}
}

func (w *Writer) observe() {
	if w.observer != nil {
		w.observer.Add(1)
	}
}
