package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into splits, catalog, output, display, and utility.
// A --config file is loaded before flags are parsed so flags always win.
// Negated flags (e.g. --no-manifest) are applied after Parse so defaults
// and file values hold unless set.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/backmassage/patchshard/internal/record"
)

// ParseFlags parses os.Args into cfg. On --help, --version or
// --print-config it prints and exits. On error it returns non-nil (e.g.
// unknown flag, missing positional args, unreadable config file).
func ParseFlags(cfg *Config, version string) error {
	n, err := parseArgs(cfg, os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}
	switch {
	case n.showHelp:
		printUsage(os.Stderr, version)
		os.Exit(0)
	case n.showVersion:
		fmt.Fprintln(os.Stdout, "patchshard v"+version)
		os.Exit(0)
	case n.printConfig:
		out, err := Marshal(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		os.Exit(0)
	}
	return nil
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default (e.g. noManifest -> WriteManifest=false)
// or trigger an early exit (showHelp, showVersion, printConfig).
type negatedFlags struct {
	noManifest  bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
	printConfig bool
}

// parseArgs is ParseFlags without the process exits, for tests.
func parseArgs(cfg *Config, args []string, stderr io.Writer) (negatedFlags, error) {
	var n negatedFlags

	if path, ok := findConfigArg(args); ok {
		if err := LoadFile(path, cfg); err != nil {
			return n, err
		}
	}

	fs := flag.NewFlagSet("patchshard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {}

	defineSplitFlags(fs, cfg)
	defineCatalogFlags(fs, cfg)
	defineOutputFlags(fs, cfg, &n)
	defineDisplayFlags(fs, cfg, &n)
	defineUtilityFlags(fs, cfg, &n)

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			n.showHelp = true
			return n, nil
		}
		return n, err
	}

	applyNegatedFlags(cfg, &n)

	if n.showHelp || n.showVersion || n.printConfig {
		return n, nil
	}
	return n, parsePositionalArgs(fs, cfg)
}

// findConfigArg returns the value of --config / -config in args, if any.
// It stops at "--" like the flag package does.
func findConfigArg(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v, true
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// defineSplitFlags registers shard and worker counts for both splits.
func defineSplitFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.TrainShards, "train-shards", cfg.TrainShards, "Number of train shards")
	fs.IntVar(&cfg.ValidationShards, "validation-shards", cfg.ValidationShards, "Number of validation shards")
	fs.IntVar(&cfg.TrainWorkers, "train-workers", cfg.TrainWorkers, "Worker goroutines for the train split")
	fs.IntVar(&cfg.TrainWorkers, "num-train-threads", cfg.TrainWorkers, "Same as --train-workers")
	fs.IntVar(&cfg.ValidationWorkers, "validation-workers", cfg.ValidationWorkers, "Worker goroutines for the validation split")
	fs.IntVar(&cfg.ValidationWorkers, "num-val-threads", cfg.ValidationWorkers, "Same as --validation-workers")
	fs.StringVar(&cfg.TrainSplit, "train-split", cfg.TrainSplit, "Train split directory and shard prefix")
	fs.StringVar(&cfg.ValidationSplit, "validation-split", cfg.ValidationSplit, "Validation split directory and shard prefix")
}

// defineCatalogFlags registers discovery and pairing options.
func defineCatalogFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Var(&labelsValue{&cfg.Labels}, "labels", "Comma-separated label directories, in label order")
	fs.IntVar(&cfg.ImageSize, "image-size", cfg.ImageSize, "Patch size token in file names (0 = any)")
	fs.Int64Var(&cfg.MinFileSize, "min-size", cfg.MinFileSize, "Skip files smaller than this many bytes")
	fs.BoolVar(&cfg.ReserveBackground, "background", cfg.ReserveBackground, "Reserve label 0 for background")
	fs.BoolVar(&cfg.StrictSize, "strict-size", cfg.StrictSize, "Skip images that are not image-size square")
	fs.StringVar(&cfg.MaskToken, "mask-token", cfg.MaskToken, "Token marking mask files")
	fs.StringVar(&cfg.TumorToken, "tumor-token", cfg.TumorToken, "Token marking tumor patches")
	fs.StringVar(&cfg.NormalToken, "normal-token", cfg.NormalToken, "Token marking normal patches")
	fs.StringVar(&cfg.MaskSeparator, "mask-separator", cfg.MaskSeparator, "Joins the mask token and the class token")
}

// defineOutputFlags registers compression, manifest and augmentation.
func defineOutputFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.Var(&compressionValue{cfg}, "compression", "Shard compression: none | gzip | zlib | zstd")
	fs.Var(&compressionValue{cfg}, "z", "Same as --compression")
	fs.BoolVar(&n.noManifest, "no-manifest", false, "Do not write <split>-manifest.yaml")
	fs.BoolVar(&cfg.Augmentation, "augmentation", cfg.Augmentation, "Accepted for compatibility; has no effect")
}

// defineDisplayFlags registers progress, color, verbose, --check, --dry-run, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "Log progress every N records per worker")
	fs.BoolVar(&cfg.ShowProgress, "progress", cfg.ShowProgress, "Show a live progress bar")
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Verify shards in output_dir and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print the shard plan without writing")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
}

// defineUtilityFlags registers --config, --print-config, --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (flags override it)")
	fs.BoolVar(&n.printConfig, "print-config", false, "Print the effective config as YAML and exit")
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noManifest {
		cfg.WriteManifest = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets InputDir and OutputDir. In check mode the only
// positional argument is the output directory. A config file may supply
// the directories instead.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		switch len(args) {
		case 0:
			if cfg.OutputDir == "" {
				return fmt.Errorf("need output_dir to check")
			}
		case 1:
			cfg.OutputDir = NormalizeDirArg(args[0])
		default:
			return fmt.Errorf("need only output_dir with --check")
		}
		return nil
	}
	switch len(args) {
	case 0:
		if cfg.InputDir == "" || cfg.OutputDir == "" {
			return fmt.Errorf("need exactly input_dir and output_dir")
		}
	case 2:
		cfg.InputDir = NormalizeDirArg(args[0])
		cfg.OutputDir = NormalizeDirArg(args[1])
	default:
		return fmt.Errorf("need exactly input_dir and output_dir")
	}
	return nil
}

// printUsage writes the help text to w. Column-aligned for readability.
func printUsage(w io.Writer, version string) {
	const col1 = 32 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "patchshard v" + version + " - image/mask patches to sharded TFRecord files"},
		{"", ""},
		{"  patchshard [OPTIONS] <input_dir> <output_dir>", ""},
		{"  patchshard --check [OPTIONS] <output_dir>", ""},
		{"", ""},
		{"Splits (read from <input_dir>/<split>/<label>/)", ""},
		{"  --train-shards <n>", "Train shards (default: 150)"},
		{"  --validation-shards <n>", "Validation shards (default: 20)"},
		{"  --train-workers <n>", "Train workers (default: 6); must divide shards"},
		{"  --validation-workers <n>", "Validation workers (default: 5); must divide shards"},
		{"  --train-split <name>", "Train split name (default: train)"},
		{"  --validation-split <name>", "Validation split name (default: validation)"},
		{"", ""},
		{"Catalog", ""},
		{"  --labels <a,b,...>", "Label directories in label order (default: label-0,label-1)"},
		{"  --image-size <px>", "Size token in file names; 0 = any (default: 704)"},
		{"  --min-size <bytes>", "Skip smaller files (default: 750000)"},
		{"  --background", "Reserve label 0 for background"},
		{"  --strict-size", "Skip images that are not image-size square"},
		{"  --mask-token <s>", "Mask file token (default: mask)"},
		{"  --tumor-token <s>", "Tumor patch token (default: tumor)"},
		{"  --normal-token <s>", "Normal patch token (default: normal)"},
		{"  --mask-separator <s>", "Between mask and class token (default: _)"},
		{"", ""},
		{"Output", ""},
		{"  -z, --compression <mode>", "none | gzip | zlib | zstd (default: none)"},
		{"  --no-manifest", "Do not write <split>-manifest.yaml"},
		{"  --augmentation", "Accepted for compatibility; no effect"},
		{"", ""},
		{"Display", ""},
		{"  --progress-every <n>", "Progress log interval per worker (default: 1000)"},
		{"  --progress", "Show a live progress bar"},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  --config <path>", "YAML config file; flags override it"},
		{"  --print-config", "Print the effective config and exit"},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "Verify existing shards and exit"},
		{"  -d, --dry-run", "Print the shard plan without writing"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(w)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(w, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(w, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(w, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters for list and enum fields.

type labelsValue struct{ p *[]string }

func (l *labelsValue) String() string {
	if l.p == nil {
		return ""
	}
	return strings.Join(*l.p, ",")
}

func (l *labelsValue) Set(s string) error {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fmt.Errorf("labels must not be empty")
	}
	*l.p = out
	return nil
}

type compressionValue struct{ cfg *Config }

func (c *compressionValue) String() string {
	if c.cfg == nil {
		return ""
	}
	return string(c.cfg.Compression)
}

func (c *compressionValue) Set(s string) error {
	comp, err := record.ParseCompression(s)
	if err != nil {
		return err
	}
	c.cfg.Compression = comp
	return nil
}
