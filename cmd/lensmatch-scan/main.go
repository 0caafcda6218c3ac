// lensmatch-scan runs one image through the scan pipeline and prints the result.
//
// Usage:
//
//	lensmatch-scan [-config config/local.yaml] [-format markdown|json] photo.jpg
//
// Without -config the file is chosen by ENV exactly as for the API server.
// Region results are printed as soon as each region is finished.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/app"
	"github.com/kailas-cloud/lensmatch/internal/config"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	logpkg "github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/report"
)

type options struct {
	configPath string
	format     string
	cropsDir   string
	imagePath  string
}

func main() {
	opts := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, "lensmatch-scan:", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default: config/<ENV>.yaml)")
	flag.StringVar(&opts.format, "format", "markdown", "output format: markdown or json")
	flag.StringVar(&opts.cropsDir, "crops-dir", "", "copy region crops into this directory")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.imagePath = flag.Arg(0)
	return opts
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.format != "markdown" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	raw, err := os.ReadFile(filepath.Clean(opts.imagePath))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	a, err := app.Build(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var listener func(scan.RegionOutcome)
	if opts.format == "markdown" {
		listener = func(o scan.RegionOutcome) { report.WriteRegion(out, o) }
	}

	rep, runErr := a.Pipeline.Run(ctx, raw, listener)
	if rep != nil && opts.cropsDir != "" {
		if err := saveCrops(opts.cropsDir, rep); err != nil {
			logger.Warn("Failed to save crops", zap.Error(err))
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep.WithoutCrops()); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return runErr
	}

	fmt.Fprintln(out)
	report.WriteHeader(out, rep)
	return runErr
}

// saveCrops writes each region crop as object_<n>.png. The pipeline workspace is already gone.
func saveCrops(dir string, rep *scan.Report) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create crops dir: %w", err)
	}
	var errs []error
	for _, o := range rep.Regions {
		if len(o.CropPNG) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("object_%d.png", o.Index+1))
		if err := os.WriteFile(path, o.CropPNG, 0o600); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
