// Command patchshard is the CLI entrypoint for the patch record builder.
//
// It parses flags, validates configuration and paths, and either verifies
// existing shards (--check), prints the shard plan (--dry-run), or writes
// the record shards for every split.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/patchshard/internal/catalog"
	"github.com/backmassage/patchshard/internal/check"
	"github.com/backmassage/patchshard/internal/config"
	"github.com/backmassage/patchshard/internal/display"
	"github.com/backmassage/patchshard/internal/logging"
	"github.com/backmassage/patchshard/internal/pipeline"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version); err != nil {
		fmt.Fprintf(os.Stderr, "patchshard: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "patchshard: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "patchshard: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available. All output goes through log from here on.
	display.PrintBanner()

	if cfg.CheckOnly {
		if !check.RunCheck(&cfg, log) {
			return 1
		}
		return 0
	}

	// Input must exist, output is created if needed, and output must not
	// be inside input.
	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		return 1
	}
	if err := check.CheckInputs(&cfg, log); err != nil {
		log.Error("%v", err)
		return 1
	}
	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			log.Error("Cannot create output directory: %s", cfg.OutputDir)
			return 1
		}
	}
	outputAbs, err := absPath(cfg.OutputDir)
	if err != nil && !cfg.DryRun {
		log.Error("Cannot resolve output path: %s", cfg.OutputDir)
		return 1
	}
	if err == nil {
		if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
			log.Error("%v", err)
			log.Error("Choose an output path outside: %s", cfg.InputDir)
			return 1
		}
	}

	log.Info("=== patchshard v%s (%s) ===", version, commit)
	if cfg.DryRun {
		log.Warn("DRY RUN: no shards will be written")
	}
	log.Info("")

	// Phase 3: Signal handling. Cancel on SIGINT/SIGTERM; in-flight shards
	// are discarded and completed shards are kept.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, discarding unfinished shards…")
		cancel()
	}()

	// Phase 4: catalog → partition → write shards.
	if cfg.DryRun {
		if err := pipeline.Preview(ctx, &cfg, log, os.Stdout); err != nil {
			return fail(log, err)
		}
		return 0
	}

	if _, err := pipeline.Run(ctx, &cfg, log); err != nil {
		return fail(log, err)
	}
	return 0
}

func fail(log *logging.Logger, err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		log.Warn("Interrupted: %v", err)
	case errors.Is(err, catalog.ErrNoFilesFound):
		log.Error("%v", err)
		log.Error("Check --labels, --image-size and --min-size against the input layout")
	default:
		log.Error("%v", err)
	}
	return 1
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of input vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
