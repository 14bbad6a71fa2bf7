// Package check provides output verification (--check mode) and the
// pre-pipeline input validation (CheckInputs).
package check

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/patchshard/internal/config"
	"github.com/backmassage/patchshard/internal/manifest"
	"github.com/backmassage/patchshard/internal/record"
	"github.com/backmassage/patchshard/internal/shard"
)

// Sentinel errors returned by CheckInputs when the input layout is incomplete.
var (
	ErrInputNotFound = errors.New("input directory not found")
	ErrSplitNotFound = errors.New("split directory not found")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// RunCheck verifies the shards of every split in cfg.OutputDir: every
// shard ID must be present, every record must pass its checksums and
// decode, and record counts must match the manifest when one exists.
// It reports each problem and returns false if any was found.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== Shard Check ===")
	log.Info("Output: %s", cfg.OutputDir)

	ok := true
	for _, ds := range cfg.Datasets() {
		if !checkDataset(cfg, ds, log) {
			ok = false
		}
	}
	if ok {
		log.Success("All shards verified")
	} else {
		log.Error("Shard check failed")
	}
	return ok
}

// checkDataset verifies one split. The manifest, when present, overrides
// the configured shard count and compression.
func checkDataset(cfg *config.Config, ds config.Dataset, log Logger) bool {
	total := ds.Shards
	compression := cfg.Compression

	m, err := manifest.Load(cfg.OutputDir, ds.Name)
	switch {
	case err == nil:
		if m.TotalShards <= 0 {
			log.Error("[%s] Malformed manifest: total_shards is %d", ds.Name, m.TotalShards)
			return false
		}
		total = m.TotalShards
		compression = m.Compression
		log.Info("[%s] Manifest from run %s: %d shards, %d records, %d skipped",
			ds.Name, m.RunID, m.TotalShards, m.Records, m.Skipped)
	case errors.Is(err, manifest.ErrNotFound):
		log.Warn("[%s] No manifest, expecting %d shards (%s)", ds.Name, total, compression)
	default:
		log.Error("[%s] %v", ds.Name, err)
		return false
	}

	ok := true
	records := 0
	for id := 0; id < total; id++ {
		name := shard.Name(ds.Name, id, total)
		n, err := VerifyShard(shard.Path(cfg.OutputDir, ds.Name, id, total), compression)
		if err != nil {
			log.Error("[%s] %s: %v", ds.Name, name, err)
			ok = false
			continue
		}
		if m != nil {
			if s, found := m.ShardByID(id); !found {
				log.Warn("[%s] %s is not listed in the manifest", ds.Name, name)
			} else if s.Records != n {
				log.Error("[%s] %s: %d records, manifest says %d", ds.Name, name, n, s.Records)
				ok = false
			}
		}
		log.Debug("[%s] %s: %d records", ds.Name, name, n)
		records += n
	}

	for _, stray := range strayShards(cfg.OutputDir, ds.Name, total) {
		log.Warn("[%s] Stray file %s does not belong to a complete %d-shard run", ds.Name, stray, total)
	}

	if m != nil && ok && records != m.Records {
		log.Error("[%s] %d records in shards, manifest says %d", ds.Name, records, m.Records)
		ok = false
	}
	if ok {
		log.Success("[%s] %d shards, %d records verified", ds.Name, total, records)
	}
	return ok
}

// VerifyShard reads every record of the shard at path and returns the
// record count. Any framing, checksum or decoding failure is returned.
func VerifyShard(path string, c record.Compression) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rc, err := c.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("open %s stream: %w", c, err)
	}
	defer rc.Close()

	r := record.NewReader(rc)
	n := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		n++
	}
}

// strayShards lists files of dataset in dir that no complete run of total
// shards would leave behind: shards with another total, and temporary
// shard files from a run that was killed before it could clean up.
func strayShards(dir, dataset string, total int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var stray []string
	for _, e := range entries {
		name := e.Name()
		if i := strings.Index(name, ".tmp."); i > 0 {
			if ds, _, _, ok := shard.ParseName(name[:i]); ok && ds == dataset {
				stray = append(stray, name)
			}
			continue
		}
		ds, _, n, ok := shard.ParseName(name)
		if ok && ds == dataset && n != total {
			stray = append(stray, name)
		}
	}
	return stray
}

// CheckInputs is the pre-pipeline validation: the input directory and
// every split directory must exist. A missing label directory only
// contributes no files, so it is reported through log and left to
// catalog discovery to decide whether the split is empty.
// Returns a wrapped sentinel error naming the first missing path.
func CheckInputs(cfg *config.Config, log Logger) error {
	if !isDir(cfg.InputDir) {
		return fmt.Errorf("%w: %s", ErrInputNotFound, cfg.InputDir)
	}
	for _, ds := range cfg.Datasets() {
		if !isDir(ds.Dir) {
			return fmt.Errorf("%w: %s", ErrSplitNotFound, ds.Dir)
		}
		for _, label := range cfg.Labels {
			if dir := filepath.Join(ds.Dir, label); !isDir(dir) {
				log.Warn("[%s] Label directory not found, no %s files: %s", ds.Name, label, dir)
			}
		}
	}
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
