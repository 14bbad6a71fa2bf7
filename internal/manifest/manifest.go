// Package manifest records what a run wrote for one dataset split: the
// shard files with their ranges and record counts, and every catalog entry
// that was skipped. The manifest is written as <split>-manifest.yaml next
// to the shards and is read back by the check mode.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/backmassage/patchshard/internal/record"
	"github.com/backmassage/patchshard/internal/shard"
)

// ErrNotFound is returned by [Load] when no manifest exists for a split.
var ErrNotFound = errors.New("manifest not found")

// Shard describes one written shard file.
type Shard struct {
	ID      int             `yaml:"id"`
	File    string          `yaml:"file"`
	Start   int             `yaml:"start"`
	End     int             `yaml:"end"`
	Records int             `yaml:"records"`
	Bytes   int64           `yaml:"bytes"`
	Skipped []shard.Skipped `yaml:"skipped,omitempty"`
}

// Manifest is the per-split run record.
type Manifest struct {
	RunID       string             `yaml:"run_id"`
	Created     time.Time          `yaml:"created"`
	Dataset     string             `yaml:"dataset"`
	TotalShards int                `yaml:"total_shards"`
	Workers     int                `yaml:"workers"`
	Compression record.Compression `yaml:"compression"`
	Labels      []string           `yaml:"labels"`
	LabelOffset int                `yaml:"label_offset"`
	Files       int                `yaml:"files"`
	Records     int                `yaml:"records"`
	Skipped     int                `yaml:"skipped"`
	Shards      []Shard            `yaml:"shards"`
}

// NewRunID returns a fresh identifier shared by every split of one run.
func NewRunID() string {
	return uuid.NewString()
}

// FileName returns the manifest file name for dataset.
func FileName(dataset string) string {
	return dataset + "-manifest.yaml"
}

// Build fills header with the shard list and totals from results. Shards
// are ordered by ID regardless of the order the workers finished in.
func Build(header Manifest, results []shard.Result) *Manifest {
	m := header
	if m.Created.IsZero() {
		m.Created = time.Now().UTC().Truncate(time.Second)
	}
	m.Shards = make([]Shard, 0, len(results))
	m.Records, m.Skipped = 0, 0
	for _, r := range results {
		m.Shards = append(m.Shards, Shard{
			ID:      r.Shard,
			File:    filepath.Base(r.Path),
			Start:   r.Start,
			End:     r.End,
			Records: r.Written,
			Bytes:   r.FileBytes,
			Skipped: r.Skipped,
		})
		m.Records += r.Written
		m.Skipped += len(r.Skipped)
	}
	sort.Slice(m.Shards, func(i, j int) bool { return m.Shards[i].ID < m.Shards[j].ID })
	return &m
}

// Write stores m in dir under [FileName] and returns the path. The file is
// replaced atomically.
func Write(dir string, m *Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName(m.Dataset))

	tmp, err := os.CreateTemp(dir, FileName(m.Dataset)+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", fmt.Errorf("chmod manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename manifest: %w", err)
	}
	committed = true
	return path, nil
}

// Load reads the manifest of dataset from dir.
func Load(dir, dataset string) (*Manifest, error) {
	path := filepath.Join(dir, FileName(dataset))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.Dataset != dataset {
		return nil, fmt.Errorf("%s: dataset %q, want %q", path, m.Dataset, dataset)
	}
	return &m, nil
}

// ShardByID returns the entry for shard id, if present.
func (m *Manifest) ShardByID(id int) (Shard, bool) {
	for _, s := range m.Shards {
		if s.ID == id {
			return s, true
		}
	}
	return Shard{}, false
}
