// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// unearth-crawl mirrors the interesting parts of a Debian package
// archive into a local store directory, building a corpus for the
// scanner. Runs are incremental: an unchanged archive listing ends
// the run immediately, and files already present at the right size
// are not fetched again.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/unearth-project/unearth/crawl"
	"github.com/unearth-project/unearth/lib/config"
	"github.com/unearth-project/unearth/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("unearth-crawl %s\n", version.Info())
		return nil
	}

	flagSet := pflag.NewFlagSet("unearth-crawl", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "configuration file (default: $UNEARTH_CONFIG)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) != 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Crawl.ValidateForCrawl(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if os.Getenv("UNEARTH_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	crawler, err := crawl.New(cfg.Crawl, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := crawler.Run(ctx)
	if err != nil {
		return err
	}
	if summary.Unchanged {
		fmt.Println("archive listing unchanged since the last run")
		return nil
	}
	fmt.Printf("downloaded %d, skipped %d, failed %d of %d files\n",
		summary.Downloaded, summary.Skipped, len(summary.Failed), summary.Queued)
	if len(summary.Failed) > 0 {
		for _, name := range summary.Failed {
			fmt.Fprintf(os.Stderr, "failed: %s\n", name)
		}
		return fmt.Errorf("%d downloads failed", len(summary.Failed))
	}
	return nil
}
