// Package catalog discovers labeled image patches under a dataset root and
// returns them in a reproducible shuffled order.
package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// ShuffleSeed fixes the catalog permutation so that repeated runs over an
// unchanged directory produce identical shard contents.
const ShuffleSeed = 12345

// ErrNoFilesFound is returned when discovery yields no eligible images.
var ErrNoFilesFound = errors.New("no eligible image files found")

// Entry is one labeled image in the catalog.
type Entry struct {
	Path      string
	Label     int
	LabelName string
}

// Options controls which files are eligible.
type Options struct {
	// SizeToken narrows the glob to names containing it (e.g. "704").
	// Empty matches every file in a label directory.
	SizeToken string
	// MinSize drops files smaller than this many bytes.
	MinSize int64
	// MaskToken marks mask files, which are never catalog entries.
	MaskToken string
	// LabelOffset is added to every positional label index. Use 1 to
	// reserve label 0 as a background class.
	LabelOffset int
	// Seed for the shuffle. Zero means ShuffleSeed.
	Seed int64
}

// LabelStat is the per-label result of discovery.
type LabelStat struct {
	Name       string
	Index      int
	Matched    int
	Masks      int
	TooSmall   int
	Unreadable int // vanished or dangling between glob and stat
}

// Discover globs rootDir/<label>/*<SizeToken>* for every label in order,
// filters masks and undersized files, assigns positional labels and
// returns the shuffled catalog together with per-label counts.
func Discover(rootDir string, labels []string, opts Options) ([]Entry, []LabelStat, error) {
	var entries []Entry
	stats := make([]LabelStat, 0, len(labels))

	for i, label := range labels {
		st := LabelStat{Name: label, Index: i + opts.LabelOffset}
		pattern := filepath.Join(rootDir, label, "*"+opts.SizeToken+"*")
		if opts.SizeToken == "" {
			pattern = filepath.Join(rootDir, label, "*")
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, path := range matches {
			if opts.MaskToken != "" && strings.Contains(filepath.Base(path), opts.MaskToken) {
				st.Masks++
				continue
			}
			fi, err := os.Stat(path)
			if err != nil {
				st.Unreadable++
				continue
			}
			if !fi.Mode().IsRegular() {
				continue
			}
			if fi.Size() < opts.MinSize {
				st.TooSmall++
				continue
			}
			entries = append(entries, Entry{Path: path, Label: st.Index, LabelName: label})
			st.Matched++
		}
		stats = append(stats, st)
	}

	if len(entries) == 0 {
		return nil, stats, fmt.Errorf("%w in %s (labels %s)", ErrNoFilesFound, rootDir, strings.Join(labels, ", "))
	}

	seed := opts.Seed
	if seed == 0 {
		seed = ShuffleSeed
	}
	Shuffle(entries, seed)
	return entries, stats, nil
}

// Shuffle permutes entries in place using a PRNG seeded with seed.
func Shuffle(entries []Entry, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
}
