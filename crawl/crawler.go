// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/unearth-project/unearth/lib/config"
)

// Crawler mirrors the interesting parts of one Debian archive into a
// local store directory.
type Crawler struct {
	cfg    config.CrawlConfig
	client *http.Client
	logger *slog.Logger
}

// Summary is the outcome of one crawler run.
type Summary struct {
	// Unchanged is true when the archive listing hash matched the
	// previous run and nothing was downloaded.
	Unchanged bool

	// Queued is the number of pool files selected for download.
	Queued int

	// Downloaded and Skipped count fetched files and files already
	// present at the right size.
	Downloaded int
	Skipped    int

	// Failed lists the files that could not be downloaded.
	Failed []string
}

// New validates the configuration and returns a crawler. The store
// directory must already exist; the layout inside it is created on
// the first run.
func New(cfg config.CrawlConfig, logger *slog.Logger) (*Crawler, error) {
	if cfg.Mirror == "" {
		return nil, fmt.Errorf("crawl: mirror is required")
	}
	if cfg.StoreDirectory == "" {
		return nil, fmt.Errorf("crawl: store directory is required")
	}
	info, err := os.Stat(cfg.StoreDirectory)
	if err != nil {
		return nil, fmt.Errorf("crawl: store directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("crawl: store directory %s is not a directory", cfg.StoreDirectory)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Crawler{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Minute},
		logger: logger,
	}, nil
}

// Run executes one crawl: fetch the listing, bail out early when it
// is unchanged, otherwise download everything selected by the
// listing with the configured number of workers.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	if err := c.ensureLayout(); err != nil {
		return nil, err
	}

	listing, unchanged, err := c.fetchListing(ctx)
	if err != nil {
		return nil, err
	}
	if unchanged {
		c.logger.Info("archive listing unchanged, nothing to do")
		return &Summary{Unchanged: true}, nil
	}

	zr, err := gzip.NewReader(listing)
	if err != nil {
		return nil, fmt.Errorf("crawl: decompressing listing: %w", err)
	}
	tasks, err := parseListing(zr, c.cfg.Architectures)
	listing.Close()
	if err != nil {
		return nil, err
	}

	summary := &Summary{Queued: len(tasks)}
	c.logger.Info("listing parsed", "files", len(tasks))

	workers := c.cfg.Threads
	if workers <= 0 || workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}

	taskCh := make(chan task)
	type outcome struct {
		name       string
		skipped    bool
		downloaded bool
	}
	outcomeCh := make(chan outcome)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				skipped, err := c.download(ctx, t)
				if err != nil {
					c.logger.Warn("download failed",
						"file", t.name, "dir", t.dir, "error", err)
					outcomeCh <- outcome{name: t.name}
					continue
				}
				if skipped {
					c.logger.Debug("already downloaded", "file", t.name)
				} else {
					c.logger.Info("downloaded", "file", t.name, "dir", t.dir)
				}
				outcomeCh <- outcome{name: t.name, skipped: skipped, downloaded: !skipped}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomeCh)
	}()

	for out := range outcomeCh {
		switch {
		case out.downloaded:
			summary.Downloaded++
		case out.skipped:
			summary.Skipped++
		default:
			summary.Failed = append(summary.Failed, out.name)
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("crawl: aborted: %w", err)
	}

	c.logger.Info("crawl finished",
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed))
	return summary, nil
}

// ensureLayout creates the store directory structure: one directory
// per category, each with the archive components, plus meta and logs.
func (c *Crawler) ensureLayout() error {
	store := c.cfg.StoreDirectory
	dirs := []string{
		filepath.Join(store, "meta"),
		filepath.Join(store, "logs"),
	}
	for _, cat := range []category{catBinary, catSource, catDSC, catPatches} {
		for _, component := range []string{"contrib", "main", "non-free"} {
			dirs = append(dirs, filepath.Join(store, cat.dir(), component))
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("crawl: creating %s: %w", dir, err)
		}
	}
	return nil
}

// fetchListing downloads ls-lR.gz, stores a timestamped copy under
// meta/, and compares its SHA-256 against the HASH state file. When
// the hash matches, the copy is removed and unchanged is true;
// otherwise the state file is rewritten and a reader over the stored
// copy is returned.
func (c *Crawler) fetchListing(ctx context.Context) (rc io.ReadCloser, unchanged bool, err error) {
	url := c.cfg.Mirror + "/ls-lR.gz"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("crawl: %w", err)
	}
	response, err := c.client.Do(request)
	if err != nil {
		return nil, false, fmt.Errorf("crawl: fetching listing: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("crawl: fetching listing: status %s", response.Status)
	}

	// Download to a temporary file first so an unchanged listing
	// never disturbs the previously stored copy.
	out, err := os.CreateTemp(filepath.Join(c.cfg.StoreDirectory, "meta"), "ls-lR.gz-*.part")
	if err != nil {
		return nil, false, fmt.Errorf("crawl: storing listing: %w", err)
	}
	tempPath := out.Name()
	digest := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, digest), response.Body); err != nil {
		out.Close()
		os.Remove(tempPath)
		return nil, false, fmt.Errorf("crawl: storing listing: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return nil, false, fmt.Errorf("crawl: storing listing: %w", err)
	}
	listingHash := hex.EncodeToString(digest.Sum(nil))

	hashPath := filepath.Join(c.cfg.StoreDirectory, "HASH")
	if previous, err := os.ReadFile(hashPath); err == nil && string(previous) == listingHash {
		os.Remove(tempPath)
		return nil, true, nil
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	metaPath := filepath.Join(c.cfg.StoreDirectory, "meta", "ls-lR.gz-"+stamp)
	if err := os.Rename(tempPath, metaPath); err != nil {
		os.Remove(tempPath)
		return nil, false, fmt.Errorf("crawl: storing listing: %w", err)
	}
	if err := os.WriteFile(hashPath, []byte(listingHash), 0o644); err != nil {
		return nil, false, fmt.Errorf("crawl: writing hash state: %w", err)
	}

	stored, err := os.Open(metaPath)
	if err != nil {
		return nil, false, fmt.Errorf("crawl: reopening listing: %w", err)
	}
	return stored, false, nil
}

// download fetches one pool file into its category/component
// directory. A file already present at the declared size is skipped;
// a present file with the wrong size is a failed earlier download
// and is replaced.
func (c *Crawler) download(ctx context.Context, t task) (skipped bool, err error) {
	target := filepath.Join(c.cfg.StoreDirectory, t.category.dir(), t.component(), t.name)
	if info, err := os.Stat(target); err == nil {
		if info.Size() == t.size {
			return true, nil
		}
		if err := os.Remove(target); err != nil {
			return false, fmt.Errorf("removing partial %s: %w", target, err)
		}
	}

	url := c.cfg.Mirror + "/" + t.dir + "/" + t.name
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	response, err := c.client.Do(request)
	if err != nil {
		return false, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %s", response.Status)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}
	out, err := os.Create(target)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, response.Body); err != nil {
		out.Close()
		os.Remove(target)
		return false, err
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return false, err
	}
	return false, nil
}
