// Package config holds runtime configuration: defaults, YAML file loading,
// CLI flag parsing, and validation. Defaults match the original record
// builder (150/20 shards, 6/5 workers, 704 px patches, 750 kB floor).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/patchshard/internal/partition"
	"github.com/backmassage/patchshard/internal/record"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Dataset is one split processed by the pipeline.
type Dataset struct {
	Name    string // output prefix, e.g. "train"
	Dir     string // <InputDir>/<Name>
	Shards  int
	Workers int
}

// Config holds all runtime settings. It is populated by [DefaultConfig],
// optionally overlaid by [LoadFile], and then mutated by [ParseFlags]
// before being passed (by pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args).
	InputDir   string `yaml:"input_dir"`
	OutputDir  string `yaml:"output_dir"`
	ConfigFile string `yaml:"-"`

	// Splits. Each split is read from <InputDir>/<name>.
	TrainSplit        string `yaml:"train_split"`        // Default: "train".
	ValidationSplit   string `yaml:"validation_split"`   // Default: "validation".
	TrainShards       int    `yaml:"train_shards"`       // Default: 150.
	ValidationShards  int    `yaml:"validation_shards"`  // Default: 20.
	TrainWorkers      int    `yaml:"train_workers"`      // Default: 6.
	ValidationWorkers int    `yaml:"validation_workers"` // Default: 5.

	// Catalog.
	Labels            []string `yaml:"labels"`             // Default: label-0, label-1.
	ImageSize         int      `yaml:"image_size"`         // Default: 704. Glob token; 0 matches all.
	MinFileSize       int64    `yaml:"min_file_size"`      // Default: 750000 bytes.
	ReserveBackground bool     `yaml:"reserve_background"` // Shift labels so 0 is unused.
	StrictSize        bool     `yaml:"strict_size"`        // Reject images that are not ImageSize square.

	// Mask pairing tokens.
	MaskToken     string `yaml:"mask_token"`     // Default: "mask".
	TumorToken    string `yaml:"tumor_token"`    // Default: "tumor".
	NormalToken   string `yaml:"normal_token"`   // Default: "normal".
	MaskSeparator string `yaml:"mask_separator"` // Default: "_".

	// Output.
	Compression   record.Compression `yaml:"compression"`    // Default: none.
	WriteManifest bool               `yaml:"write_manifest"` // Default: true.
	Augmentation  bool               `yaml:"augmentation"`   // Accepted for compatibility; unused.

	// Display and logging.
	ProgressEvery int       `yaml:"progress_every"` // Default: 1000 records per worker.
	ShowProgress  bool      `yaml:"show_progress"`  // Live progress bar on a TTY.
	Verbose       bool      `yaml:"verbose"`
	ColorMode     ColorMode `yaml:"color"` // Default: "auto".
	LogFile       string    `yaml:"log_file"`
	CheckOnly     bool      `yaml:"-"` // Verify shards in OutputDir and exit.
	DryRun        bool      `yaml:"-"` // Catalog and print the shard plan without writing.
}

// DefaultConfig returns a Config with the defaults of the original
// builder. Used as the base before [LoadFile] and [ParseFlags].
func DefaultConfig() Config {
	return Config{
		TrainSplit:        "train",
		ValidationSplit:   "validation",
		TrainShards:       150,
		ValidationShards:  20,
		TrainWorkers:      6,
		ValidationWorkers: 5,
		Labels:            []string{"label-0", "label-1"},
		ImageSize:         704,
		MinFileSize:       750000,
		MaskToken:         "mask",
		TumorToken:        "tumor",
		NormalToken:       "normal",
		MaskSeparator:     "_",
		Compression:       record.CompressionNone,
		WriteManifest:     true,
		ProgressEvery:     1000,
		ColorMode:         ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// SizeToken is the glob token derived from ImageSize ("" when zero).
func (c *Config) SizeToken() string {
	if c.ImageSize <= 0 {
		return ""
	}
	return strconv.Itoa(c.ImageSize)
}

// LabelOffset is 1 when label 0 is reserved as background.
func (c *Config) LabelOffset() int {
	if c.ReserveBackground {
		return 1
	}
	return 0
}

// Datasets returns the splits in processing order: validation, then train.
func (c *Config) Datasets() []Dataset {
	return []Dataset{
		{
			Name:    c.ValidationSplit,
			Dir:     filepath.Join(c.InputDir, c.ValidationSplit),
			Shards:  c.ValidationShards,
			Workers: c.ValidationWorkers,
		},
		{
			Name:    c.TrainSplit,
			Dir:     filepath.Join(c.InputDir, c.TrainSplit),
			Shards:  c.TrainShards,
			Workers: c.TrainWorkers,
		},
	}
}

// Validate checks enum fields, shard/worker divisibility for both splits
// and required paths. Divisibility failures wrap [partition.ErrConfig].
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	comp, err := record.ParseCompression(string(c.Compression))
	if err != nil {
		return err
	}
	c.Compression = comp

	if err := partition.Validate(c.TrainShards, c.TrainWorkers); err != nil {
		return fmt.Errorf("%s split: %w", c.TrainSplit, err)
	}
	if err := partition.Validate(c.ValidationShards, c.ValidationWorkers); err != nil {
		return fmt.Errorf("%s split: %w", c.ValidationSplit, err)
	}
	if c.TrainSplit == "" || c.ValidationSplit == "" {
		return errors.New("split names must not be empty")
	}
	if c.TrainSplit == c.ValidationSplit {
		return fmt.Errorf("train and validation splits must differ (both %q)", c.TrainSplit)
	}

	var labels []string
	for _, l := range c.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	c.Labels = labels
	if len(c.Labels) == 0 {
		return errors.New("at least one label is required")
	}
	if c.ImageSize < 0 {
		return fmt.Errorf("image size must not be negative (got %d)", c.ImageSize)
	}
	if c.StrictSize && c.ImageSize == 0 {
		return errors.New("strict size needs a positive image size")
	}
	if c.MinFileSize < 0 {
		return fmt.Errorf("min file size must not be negative (got %d)", c.MinFileSize)
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive (got %d)", c.ProgressEvery)
	}
	if c.MaskToken == "" {
		return errors.New("mask token must not be empty")
	}

	if c.CheckOnly && c.DryRun {
		return errors.New("--check and --dry-run are mutually exclusive")
	}
	if c.CheckOnly {
		if c.OutputDir == "" {
			return errors.New("need output_dir to check")
		}
		return nil
	}
	if c.InputDir == "" || c.OutputDir == "" {
		return errors.New("need exactly input_dir and output_dir")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved input directory, so shards never land among the patches
// a later run would catalog. Both arguments must be absolute,
// symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}
