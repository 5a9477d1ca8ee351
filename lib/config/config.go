// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for unearth binaries.
type Config struct {
	// Scan configures the core scan engine.
	Scan ScanConfig `yaml:"scan"`

	// Report configures result serialization.
	Report ReportConfig `yaml:"report"`

	// Catalog configures the scan-result catalog database. An empty
	// path disables the catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Crawl configures the mirror crawler (unearth-crawl).
	Crawl CrawlConfig `yaml:"crawl"`
}

// GapPolicy values for ScanConfig.GapPolicy.
const (
	// GapKeep leaves unclaimed gaps as terminal "unrecognized data"
	// leaves.
	GapKeep = "keep"
	// GapRescan re-enqueues each unclaimed gap as a sub-scan at the
	// next depth, giving whole-buffer fallback parsers a chance at
	// gap content.
	GapRescan = "rescan"
)

// ScanConfig configures the scan engine.
type ScanConfig struct {
	// Workers is the scan worker pool size. Zero means one worker
	// per CPU.
	Workers int `yaml:"workers"`

	// MaxDepth bounds artifact nesting. Tasks at this depth are not
	// matched further; their region becomes an unrecognized leaf.
	// Default: 16.
	MaxDepth int `yaml:"max_depth"`

	// MinRegionSize is the smallest region worth a match attempt, in
	// bytes. Regions below the size of the smallest registered
	// signature are always skipped; this raises that floor.
	// Default: 4.
	MinRegionSize int64 `yaml:"min_region_size"`

	// DedupByContentHash links byte-identical child regions to the
	// first occurrence instead of re-scanning them. Default: true.
	DedupByContentHash *bool `yaml:"dedup_by_content_hash"`

	// GapPolicy is "keep" or "rescan". Default: "keep".
	GapPolicy string `yaml:"gap_policy"`

	// PoisonThreshold is the number of unexpected faults (contract
	// violations, panics) after which a parser variant is skipped
	// for the rest of the session. Default: 3.
	PoisonThreshold int `yaml:"poison_threshold"`

	// Profile is an optional path to a JSONC scan profile that
	// enables or disables registered parsers per run.
	Profile string `yaml:"profile"`
}

// ReportConfig configures result serialization.
type ReportConfig struct {
	// Format is "json" or "cbor". Default: "json".
	Format string `yaml:"format"`
}

// CatalogConfig configures the scan-result catalog.
type CatalogConfig struct {
	// Path is the SQLite database file. Empty disables the catalog.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Default: 4.
	PoolSize int `yaml:"pool_size"`
}

// CrawlConfig configures the Debian mirror crawler.
type CrawlConfig struct {
	// Mirror is the base URL of the mirror, without a trailing
	// slash. Required for crawling.
	Mirror string `yaml:"mirror"`

	// StoreDirectory is where downloaded files and metadata are
	// kept. Must exist and be writable. Required for crawling.
	StoreDirectory string `yaml:"store_directory"`

	// Threads is the download worker count. Zero means one worker
	// per CPU; a single thread can be faster on capped lines.
	Threads int `yaml:"threads"`

	// Architectures is the set of .deb architectures to fetch.
	// Default: all, i386, amd64, arm64, armhf.
	Architectures []string `yaml:"architectures"`
}

// Default returns a Config with usable defaults for everything
// except the crawler, which has no sensible default mirror.
func Default() *Config {
	dedup := true
	return &Config{
		Scan: ScanConfig{
			Workers:            runtime.GOMAXPROCS(0),
			MaxDepth:           16,
			MinRegionSize:      4,
			DedupByContentHash: &dedup,
			GapPolicy:          GapKeep,
			PoisonThreshold:    3,
		},
		Report:  ReportConfig{Format: "json"},
		Catalog: CatalogConfig{PoolSize: 4},
		Crawl: CrawlConfig{
			Architectures: []string{"all", "i386", "amd64", "arm64", "armhf"},
		},
	}
}

// Load reads the configuration file named by the UNEARTH_CONFIG
// environment variable. When the variable is unset, defaults are
// returned.
func Load() (*Config, error) {
	path := os.Getenv("UNEARTH_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the configuration file at path, applies defaults
// for unset fields, expands variables in path fields, and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Catalog.Path = expandVariables(cfg.Catalog.Path)
	cfg.Crawl.StoreDirectory = expandVariables(cfg.Crawl.StoreDirectory)
	cfg.Scan.Profile = expandVariables(cfg.Scan.Profile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges. Crawl fields are only validated by
// [CrawlConfig.ValidateForCrawl], since scan-only binaries do not
// need a mirror configured.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return errors.New("scan.workers must not be negative")
	}
	if c.Scan.MaxDepth < 1 {
		return errors.New("scan.max_depth must be at least 1")
	}
	if c.Scan.MinRegionSize < 1 {
		return errors.New("scan.min_region_size must be at least 1")
	}
	if c.Scan.PoisonThreshold < 1 {
		return errors.New("scan.poison_threshold must be at least 1")
	}
	switch c.Scan.GapPolicy {
	case GapKeep, GapRescan:
	default:
		return fmt.Errorf("scan.gap_policy must be %q or %q, got %q", GapKeep, GapRescan, c.Scan.GapPolicy)
	}
	switch c.Report.Format {
	case "json", "cbor":
	default:
		return fmt.Errorf("report.format must be \"json\" or \"cbor\", got %q", c.Report.Format)
	}
	if c.Catalog.PoolSize < 1 {
		return errors.New("catalog.pool_size must be at least 1")
	}
	return nil
}

// ValidateForCrawl checks the fields the crawler requires.
func (c *CrawlConfig) ValidateForCrawl() error {
	if c.Mirror == "" {
		return errors.New("crawl.mirror is required")
	}
	if c.StoreDirectory == "" {
		return errors.New("crawl.store_directory is required")
	}
	info, err := os.Stat(c.StoreDirectory)
	if err != nil {
		return fmt.Errorf("crawl.store_directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("crawl.store_directory %s is not a directory", c.StoreDirectory)
	}
	if c.Threads < 0 {
		return errors.New("crawl.threads must not be negative")
	}
	if len(c.Architectures) == 0 {
		return errors.New("crawl.architectures must not be empty")
	}
	return nil
}

// variablePattern matches ${VAR} and ${VAR:-default}.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} using the
// process environment. Unset variables without a default expand to
// the empty string.
func expandVariables(s string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok {
			return value
		}
		return groups[2]
	})
}
