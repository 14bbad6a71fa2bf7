package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/patchshard/internal/catalog"
	"github.com/backmassage/patchshard/internal/codec"
	"github.com/backmassage/patchshard/internal/config"
	"github.com/backmassage/patchshard/internal/display"
	"github.com/backmassage/patchshard/internal/logging"
	"github.com/backmassage/patchshard/internal/manifest"
	"github.com/backmassage/patchshard/internal/pairing"
	"github.com/backmassage/patchshard/internal/partition"
	"github.com/backmassage/patchshard/internal/shard"
	"github.com/backmassage/patchshard/internal/term"
)

// DatasetResult is the outcome of one split.
type DatasetResult struct {
	Stats  RunStats
	Shards []shard.Result // ordered by shard ID
}

// Run is the top-level batch entry point. It processes every split of cfg
// in order (validation, then train) and returns the aggregate stats. Shard
// and worker counts of all splits are validated before any file is
// touched.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger) (RunStats, error) {
	var total RunStats

	datasets := cfg.Datasets()
	for _, ds := range datasets {
		if err := partition.Validate(ds.Shards, ds.Workers); err != nil {
			return total, fmt.Errorf("%s split: %w", ds.Name, err)
		}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return total, fmt.Errorf("create output directory: %w", err)
	}

	runID := manifest.NewRunID()
	logBatchHeader(cfg, log, runID)

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		entries, err := discover(cfg, ds, log)
		if err != nil {
			return total, err
		}

		res, err := RunDataset(ctx, cfg, ds, entries, log)
		total.Add(res.Stats)
		if err != nil {
			return total, err
		}
		logSummary(log, ds.Name, &res.Stats)

		if cfg.WriteManifest {
			m := manifest.Build(manifest.Manifest{
				RunID:       runID,
				Dataset:     ds.Name,
				TotalShards: ds.Shards,
				Workers:     ds.Workers,
				Compression: cfg.Compression,
				Labels:      cfg.Labels,
				LabelOffset: cfg.LabelOffset(),
				Files:       len(entries),
			}, res.Shards)
			path, err := manifest.Write(cfg.OutputDir, m)
			if err != nil {
				return total, fmt.Errorf("%s split: %w", ds.Name, err)
			}
			log.Debug("Manifest written: %s", path)
		}
	}

	if len(datasets) > 1 {
		logSummary(log, "all splits", &total)
	}
	return total, nil
}

// discover builds the shuffled catalog of one split and logs per-label
// counts.
func discover(cfg *config.Config, ds config.Dataset, log *logging.Logger) ([]catalog.Entry, error) {
	entries, stats, err := catalog.Discover(ds.Dir, cfg.Labels, catalogOptions(cfg))
	for _, st := range stats {
		log.Info("[%s] label %d (%s): %d files, %d masks, %d below %s",
			ds.Name, st.Index, st.Name, st.Matched, st.Masks, st.TooSmall, display.FormatBytes(cfg.MinFileSize))
		if st.Unreadable > 0 {
			log.Warn("[%s] label %s: %d unreadable files ignored", ds.Name, st.Name, st.Unreadable)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s split: %w", ds.Name, err)
	}
	log.Info("[%s] Found %d files", ds.Name, len(entries))
	return entries, nil
}

func catalogOptions(cfg *config.Config) catalog.Options {
	return catalog.Options{
		SizeToken:   cfg.SizeToken(),
		MinSize:     cfg.MinFileSize,
		MaskToken:   cfg.MaskToken,
		LabelOffset: cfg.LabelOffset(),
	}
}

func resolver(cfg *config.Config) pairing.Resolver {
	return pairing.Resolver{
		MaskToken:   cfg.MaskToken,
		TumorToken:  cfg.TumorToken,
		NormalToken: cfg.NormalToken,
		Separator:   cfg.MaskSeparator,
	}
}

func newCodec(cfg *config.Config) codec.Codec {
	if cfg.StrictSize {
		return codec.Imaging{ExpectSize: cfg.ImageSize}
	}
	return codec.Imaging{}
}

// RunDataset writes every shard of one split from entries. It launches
// exactly ds.Workers goroutines and waits for all of them. Per-file
// failures are counted as skipped; the first shard I/O failure (or
// cancellation) stops the remaining workers and is returned once all of
// them have exited.
func RunDataset(ctx context.Context, cfg *config.Config, ds config.Dataset, entries []catalog.Entry, log *logging.Logger) (DatasetResult, error) {
	var out DatasetResult

	plan, err := partition.Plan(len(entries), ds.Shards, ds.Workers)
	if err != nil {
		return out, fmt.Errorf("%s split: %w", ds.Name, err)
	}

	log.Info("[%s] Writing %d files into %d shards with %d workers", ds.Name, len(entries), ds.Shards, ds.Workers)
	start := time.Now()

	var progress *display.Progress
	if cfg.ShowProgress && term.IsTerminal(os.Stderr) {
		progress = display.NewProgress(os.Stderr, len(entries), ds.Name)
	}

	opts := shard.Options{
		OutputDir:     cfg.OutputDir,
		Dataset:       ds.Name,
		TotalShards:   ds.Shards,
		Compression:   cfg.Compression,
		ProgressEvery: cfg.ProgressEvery,
	}
	res := resolver(cfg)
	results := make([][]shard.Result, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	for w, assignments := range plan {
		w, assignments := w, assignments
		g.Go(func() error {
			assigned := 0
			for _, a := range assignments {
				assigned += a.Len()
			}
			first, last := assignments[0], assignments[len(assignments)-1]
			log.Info("[%s] Launching worker %d for shards %d-%d (files %d-%d)",
				ds.Name, w, first.Shard, last.Shard, first.Start, last.End)

			sw := shard.NewWriter(w, assigned, newCodec(cfg), res, opts, log, progress)
			for _, a := range assignments {
				r, err := sw.WriteShard(gctx, a, entries)
				if err != nil {
					return err
				}
				results[w] = append(results[w], r)
				log.Info("[worker %d] Wrote %d images to %s (%d skipped)",
					w, r.Written, shard.Name(ds.Name, r.Shard, ds.Shards), len(r.Skipped))
			}
			log.Success("[worker %d] Finished writing all %d images in data set", w, sw.Written())
			return nil
		})
	}
	err = g.Wait()
	progress.Finish()

	out.Stats.Total = len(entries)
	for _, rs := range results {
		for _, r := range rs {
			out.Shards = append(out.Shards, r)
			out.Stats.Written += r.Written
			out.Stats.Skipped += len(r.Skipped)
			out.Stats.Bytes += r.FileBytes
			out.Stats.Shards++
		}
	}
	out.Stats.Elapsed = time.Since(start)
	if err != nil {
		return out, fmt.Errorf("%s split: %w", ds.Name, err)
	}
	return out, nil
}

// --- Logging helpers ---

func logBatchHeader(cfg *config.Config, log *logging.Logger, runID string) {
	log.Info("Run %s", runID)
	log.Info("Input: %s", cfg.InputDir)
	log.Info("Output: %s", cfg.OutputDir)
	size := "any"
	if cfg.ImageSize > 0 {
		size = fmt.Sprintf("%d px", cfg.ImageSize)
	}
	log.Info("Labels: %v (offset %d), image size: %s, min file size: %s",
		cfg.Labels, cfg.LabelOffset(), size, display.FormatBytes(cfg.MinFileSize))
	log.Info("Compression: %s", cfg.Compression)
	if cfg.Augmentation {
		log.Warn("Augmentation was requested but is not applied when building records")
	}
}

func logSummary(log *logging.Logger, name string, stats *RunStats) {
	log.Info("==============================")
	log.Info("Done (%s): %d written, %d skipped of %d files", name, stats.Written, stats.Skipped, stats.Total)
	log.Info("  Shards: %d (%s)", stats.Shards, display.FormatBytes(stats.Bytes))
	log.Info("  Elapsed: %s (%s)", stats.Elapsed.Round(time.Millisecond), display.FormatRate(stats.Processed(), stats.Elapsed))
	if stats.Skipped > 0 {
		log.Warn("  %d files skipped (%s)", stats.Skipped, display.FormatPercent(stats.Skipped, stats.Total))
	} else {
		log.Success("  No files skipped")
	}
}
