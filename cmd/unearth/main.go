// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// unearth is the command-line front end for the scan engine: it
// recursively identifies, validates, and carves artifacts out of
// binary blobs.
//
// Commands:
//
//	scan <file>       scan a file and write a report
//	formats           list registered format parsers
//	tree <report>     render a JSON report as a styled tree
//	version           print the build version
//
// Configuration is read from the file named by UNEARTH_CONFIG when
// set; command-line flags override it. UNEARTH_DEBUG enables debug
// logging on stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/unearth-project/unearth/lib/config"
	"github.com/unearth-project/unearth/lib/region"
	"github.com/unearth-project/unearth/lib/resultdb"
	"github.com/unearth-project/unearth/lib/version"
	"github.com/unearth-project/unearth/parsers"
	"github.com/unearth-project/unearth/report"
	"github.com/unearth-project/unearth/scan"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return errors.New("a command is required")
	}
	switch args[0] {
	case "scan":
		return runScan(args[1:])
	case "formats":
		return runFormats(args[1:])
	case "tree":
		return runTree(args[1:])
	case "version", "--version":
		fmt.Printf("unearth %s\n", version.Info())
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage() {
	fmt.Fprint(os.Stderr, `unearth — recursive binary artifact scanner.

Usage:
  unearth scan <file> [--output FILE] [--format json|cbor] [--profile FILE]
  unearth formats
  unearth tree <report.json> [--no-color]
  unearth version

Configuration is read from the file named by UNEARTH_CONFIG; flags
override it. Set UNEARTH_DEBUG for debug logging.
`)
}

// newLogger builds the CLI logger: text on stderr, debug level when
// UNEARTH_DEBUG is set, warnings only otherwise so reports on stdout
// stay clean.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("UNEARTH_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runScan(args []string) error {
	flagSet := pflag.NewFlagSet("unearth scan", pflag.ContinueOnError)
	output := flagSet.String("output", "", "write the report to this file instead of stdout")
	format := flagSet.String("format", "", `report encoding: "json" or "cbor" (default from config)`)
	profilePath := flagSet.String("profile", "", "JSONC profile enabling or disabling parsers")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) != 1 {
		return errors.New("scan requires exactly one file argument")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *format == "" {
		*format = cfg.Report.Format
	}
	switch *format {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown report format %q", *format)
	}
	if *profilePath == "" {
		*profilePath = cfg.Scan.Profile
	}

	logger := newLogger()

	registry := scan.NewRegistry()
	if err := parsers.Register(registry); err != nil {
		return err
	}
	if *profilePath != "" {
		profile, err := scan.ReadProfile(*profilePath)
		if err != nil {
			return err
		}
		if registry, err = profile.Apply(registry); err != nil {
			return err
		}
		if profile.PoisonThreshold > 0 {
			cfg.Scan.PoisonThreshold = profile.PoisonThreshold
		}
	}
	registry.Freeze()

	buf, err := region.Open(rest[0])
	if err != nil {
		return err
	}
	defer buf.Close()

	dedup := true
	if cfg.Scan.DedupByContentHash != nil {
		dedup = *cfg.Scan.DedupByContentHash
	}
	session, err := scan.New(registry, scan.Options{
		Workers:            cfg.Scan.Workers,
		MaxDepth:           cfg.Scan.MaxDepth,
		MinRegionSize:      cfg.Scan.MinRegionSize,
		DedupByContentHash: dedup,
		GapRescan:          cfg.Scan.GapPolicy == config.GapRescan,
		PoisonThreshold:    cfg.Scan.PoisonThreshold,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := session.Run(ctx, buf)
	if err != nil {
		if !errors.Is(err, scan.ErrAborted) {
			return err
		}
		// A cancelled scan still reports the partial tree; nodes
		// that were never examined are marked incomplete.
		logger.Warn("scan aborted, reporting partial tree", "error", err)
	}

	doc, err := report.Build(result, buf)
	if err != nil {
		return err
	}

	if cfg.Catalog.Path != "" {
		if err := recordInCatalog(cfg, doc, logger); err != nil {
			logger.Warn("recording scan in catalog failed", "error", err)
		}
	}

	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		if err := writeReport(file, doc, *format); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	}
	return writeReport(os.Stdout, doc, *format)
}

func writeReport(w io.Writer, doc *report.Document, format string) error {
	if format == "cbor" {
		return report.WriteCBOR(w, doc)
	}
	return report.WriteJSON(w, doc)
}

// recordInCatalog uses a background context: a scan aborted by ^C
// should still land in the catalog.
func recordInCatalog(cfg *config.Config, doc *report.Document, logger *slog.Logger) error {
	catalog, err := resultdb.Open(resultdb.Config{
		Path:     cfg.Catalog.Path,
		PoolSize: cfg.Catalog.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer catalog.Close()
	return catalog.Record(context.Background(), doc)
}

func runFormats(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	registry := scan.NewRegistry()
	if err := parsers.Register(registry); err != nil {
		return err
	}
	for _, parser := range registry.Parsers() {
		signatures := parser.Signatures()
		if len(signatures) == 0 {
			fmt.Printf("%-16s (fallback, tried at buffer start only)\n", parser.Name())
			continue
		}
		for i, sig := range signatures {
			name := parser.Name()
			if i > 0 {
				name = ""
			}
			fmt.Printf("%-16s @%-6d % x\n", name, sig.Offset, sig.Pattern)
		}
	}
	return nil
}
