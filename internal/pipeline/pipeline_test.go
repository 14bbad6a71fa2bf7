package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/backmassage/patchshard/internal/catalog"
	"github.com/backmassage/patchshard/internal/config"
	"github.com/backmassage/patchshard/internal/logging"
	"github.com/backmassage/patchshard/internal/manifest"
	"github.com/backmassage/patchshard/internal/partition"
	"github.com/backmassage/patchshard/internal/record"
)

// --- RunDataset scenarios ---

func TestRunDataset_TenFilesTwoShardsTwoWorkers(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 10)
	cfg, log := testConfig(t, in, t.TempDir())

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 2, Workers: 2}
	entries := discoverEntries(t, &cfg, ds)

	res, err := RunDataset(context.Background(), &cfg, ds, entries, log)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if res.Stats.Written != 10 || res.Stats.Skipped != 0 || res.Stats.Shards != 2 {
		t.Fatalf("stats = %+v", res.Stats)
	}

	first := readNames(t, filepath.Join(cfg.OutputDir, "train-00000-of-00002"), cfg.Compression)
	second := readNames(t, filepath.Join(cfg.OutputDir, "train-00001-of-00002"), cfg.Compression)
	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("shard sizes = %d, %d, want 5, 5", len(first), len(second))
	}
	for i, name := range append(first, second...) {
		if want := filepath.Base(entries[i].Path); name != want {
			t.Errorf("record %d = %s, want %s (catalog order)", i, name, want)
		}
	}
}

func TestRunDataset_FourShardsTwoWorkers(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 10)
	cfg, log := testConfig(t, in, t.TempDir())

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 4, Workers: 2}
	entries := discoverEntries(t, &cfg, ds)

	res, err := RunDataset(context.Background(), &cfg, ds, entries, log)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if len(res.Shards) != 4 {
		t.Fatalf("got %d shards, want 4", len(res.Shards))
	}

	// Worker 0 owns [0, 5) as shards 0 and 1; worker 1 owns [5, 10) as 2 and 3.
	want := []struct{ shard, start, end int }{
		{0, 0, 2}, {1, 2, 5}, {2, 5, 7}, {3, 7, 10},
	}
	for i, w := range want {
		got := res.Shards[i]
		if got.Shard != w.shard || got.Start != w.start || got.End != w.end {
			t.Errorf("shard %d = %d [%d, %d), want %d [%d, %d)", i, got.Shard, got.Start, got.End, w.shard, w.start, w.end)
		}
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, fmt.Sprintf("train-%05d-of-00004", w.shard))); err != nil {
			t.Errorf("shard file %d: %v", w.shard, err)
		}
	}
}

func TestRunDataset_IndivisibleFailsBeforeIO(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 4)
	out := t.TempDir()
	cfg, log := testConfig(t, in, out)

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 3, Workers: 2}
	entries := discoverEntries(t, &cfg, ds)

	_, err := RunDataset(context.Background(), &cfg, ds, entries, log)
	if !errors.Is(err, partition.ErrConfig) {
		t.Fatalf("error = %v, want partition.ErrConfig", err)
	}
	assertEmptyDir(t, out)
}

func TestRunDataset_MoreShardsThanFiles(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 2)
	cfg, log := testConfig(t, in, t.TempDir())

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 4, Workers: 4}
	entries := discoverEntries(t, &cfg, ds)

	res, err := RunDataset(context.Background(), &cfg, ds, entries, log)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	total := 0
	for id := 0; id < 4; id++ {
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("train-%05d-of-00004", id))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("shard %d missing: %v", id, err)
		}
		total += len(readNames(t, path, cfg.Compression))
	}
	if total != 2 || res.Stats.Written != 2 {
		t.Errorf("records = %d, written = %d, want 2", total, res.Stats.Written)
	}
}

func TestRunDataset_SkipIsolation(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 6)
	cfg, log := testConfig(t, in, t.TempDir())

	bad := filepath.Join(in, "train", "label-1", "tumor_0.png")
	if err := os.WriteFile(bad, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 2, Workers: 2}
	entries := discoverEntries(t, &cfg, ds)

	res, err := RunDataset(context.Background(), &cfg, ds, entries, log)
	if err != nil {
		t.Fatalf("RunDataset: %v", err)
	}
	if res.Stats.Written != 5 || res.Stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want 5 written, 1 skipped", res.Stats)
	}

	var names []string
	for _, r := range res.Shards {
		names = append(names, readNames(t, r.Path, cfg.Compression)...)
	}
	for _, n := range names {
		if n == "tumor_0.png" {
			t.Error("corrupt image was written")
		}
	}
	if len(names) != 5 {
		t.Errorf("got %d records, want 5", len(names))
	}
}

func TestRunDataset_Canceled(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 4)
	out := t.TempDir()
	cfg, log := testConfig(t, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := config.Dataset{Name: "train", Dir: filepath.Join(in, "train"), Shards: 2, Workers: 2}
	_, err := RunDataset(ctx, &cfg, ds, discoverEntries(t, &cfg, ds), log)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	assertEmptyDir(t, out)
}

// --- Run ---

func TestRun_BothSplitsWithManifests(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 8)
	writeSplit(t, in, "validation", 4)
	cfg, log := testConfig(t, in, t.TempDir())

	stats, err := Run(context.Background(), &cfg, log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Total != 12 || stats.Written != 12 || stats.Shards != 6 {
		t.Errorf("stats = %+v", stats)
	}

	for _, split := range []string{"train", "validation"} {
		m, err := manifest.Load(cfg.OutputDir, split)
		if err != nil {
			t.Fatalf("manifest %s: %v", split, err)
		}
		if len(m.Shards) == 0 || m.Records != m.Files {
			t.Errorf("%s manifest = %+v", split, m)
		}
	}
	train, _ := manifest.Load(cfg.OutputDir, "train")
	val, _ := manifest.Load(cfg.OutputDir, "validation")
	if train.RunID != val.RunID {
		t.Errorf("splits of one run have different ids: %s, %s", train.RunID, val.RunID)
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 9)
	writeSplit(t, in, "validation", 4)

	outA, outB := t.TempDir(), t.TempDir()
	for _, out := range []string{outA, outB} {
		cfg, log := testConfig(t, in, out)
		cfg.Compression = record.CompressionGzip
		cfg.WriteManifest = false
		if _, err := Run(context.Background(), &cfg, log); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	a, b := listDir(t, outA), listDir(t, outB)
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Fatalf("file sets differ: %v vs %v", a, b)
	}
	for _, name := range a {
		da, _ := os.ReadFile(filepath.Join(outA, name))
		db, _ := os.ReadFile(filepath.Join(outB, name))
		if !bytes.Equal(da, db) {
			t.Errorf("%s differs between runs", name)
		}
	}
}

func TestRun_MissingLabelDirectory(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 6)
	writeSplit(t, in, "validation", 4)
	for _, split := range []string{"train", "validation"} {
		if err := os.RemoveAll(filepath.Join(in, split, "label-1")); err != nil {
			t.Fatal(err)
		}
	}
	cfg, log := testConfig(t, in, t.TempDir())

	stats, err := Run(context.Background(), &cfg, log)
	if err != nil {
		t.Fatalf("Run with an absent label directory: %v", err)
	}
	if stats.Written != 5 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want the 5 label-0 files written", stats)
	}
}

func TestRun_NoFilesFound(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 2)
	if err := os.MkdirAll(filepath.Join(in, "validation"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, log := testConfig(t, in, t.TempDir())

	_, err := Run(context.Background(), &cfg, log)
	if !errors.Is(err, catalog.ErrNoFilesFound) {
		t.Errorf("error = %v, want catalog.ErrNoFilesFound", err)
	}
}

func TestRun_ValidatesAllSplitsFirst(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 2)
	writeSplit(t, in, "validation", 2)
	out := filepath.Join(t.TempDir(), "records")
	cfg, log := testConfig(t, in, out)
	cfg.TrainShards = 3

	if _, err := Run(context.Background(), &cfg, log); !errors.Is(err, partition.ErrConfig) {
		t.Fatalf("error = %v, want partition.ErrConfig", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory was created before validation failed")
	}
}

func TestPreview_WritesNothing(t *testing.T) {
	in := t.TempDir()
	writeSplit(t, in, "train", 3)
	writeSplit(t, in, "validation", 2)
	out := t.TempDir()
	cfg, log := testConfig(t, in, out)
	cfg.TrainShards, cfg.TrainWorkers = 4, 2

	var buf bytes.Buffer
	if err := Preview(context.Background(), &cfg, log, &buf); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	assertEmptyDir(t, out)

	table := buf.String()
	for _, want := range []string{"train-00003-of-00004", "validation-00001-of-00002", "label-0", "[empty]"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}
}

func TestRunStats_Add(t *testing.T) {
	s := RunStats{Total: 3, Written: 2, Skipped: 1, Shards: 1, Bytes: 10}
	s.Add(RunStats{Total: 4, Written: 4, Shards: 2, Bytes: 5})
	if s.Total != 7 || s.Written != 6 || s.Skipped != 1 || s.Shards != 3 || s.Bytes != 15 {
		t.Errorf("Add = %+v", s)
	}
	if s.Processed() != 7 {
		t.Errorf("Processed = %d", s.Processed())
	}
}

// --- Helpers ---

func testConfig(t *testing.T, in, out string) (config.Config, *logging.Logger) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputDir = in
	cfg.OutputDir = out
	cfg.TrainShards, cfg.TrainWorkers = 4, 2
	cfg.ValidationShards, cfg.ValidationWorkers = 2, 2
	cfg.ImageSize = 0
	cfg.MinFileSize = 0
	cfg.ColorMode = config.ColorNever

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.SetOutput(io.Discard, io.Discard)
	t.Cleanup(func() { log.Close() })
	return cfg, log
}

// writeSplit creates n image/mask pairs under in/<split>, alternating
// normal patches in label-0 and tumor patches in label-1.
func writeSplit(t *testing.T, in, split string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		label, class := "label-0", "normal"
		if i%2 == 1 {
			label, class = "label-1", "tumor"
		}
		dir := filepath.Join(in, split, label)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		writePNG(t, filepath.Join(dir, fmt.Sprintf("%s_%d.png", class, i/2)), i)
		writePNG(t, filepath.Join(dir, fmt.Sprintf("mask_%s_%d.png", class, i/2)), i+100)
	}
}

func writePNG(t *testing.T, path string, seed int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{uint8(seed), uint8(x * 50), uint8(y * 50), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func discoverEntries(t *testing.T, cfg *config.Config, ds config.Dataset) []catalog.Entry {
	t.Helper()
	entries, _, err := catalog.Discover(ds.Dir, cfg.Labels, catalogOptions(cfg))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return entries
}

func readNames(t *testing.T, path string, c record.Compression) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rc, err := c.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	var names []string
	r := record.NewReader(rc)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		names = append(names, rec.Filename)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("%s should be empty, has %v", dir, names)
	}
}
