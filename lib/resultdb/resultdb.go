// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package resultdb is the scan result catalog: a SQLite database of
// completed sessions keyed by the root buffer's content hash, with
// per-artifact rows for querying. Its main job besides bookkeeping is
// [Catalog.Seen]: a caller scanning a large corpus can skip inputs
// whose content hash is already cataloged.
//
// The database uses WAL journal mode with NORMAL synchronous: results
// survive process crashes, and the source data can always be
// re-scanned, so fsync-per-commit durability is not worth its cost.
package resultdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/unearth-project/unearth/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    root_hash  TEXT PRIMARY KEY,
    root_size  INTEGER NOT NULL,
    scanned_at TEXT NOT NULL,
    tool       TEXT NOT NULL,
    incomplete INTEGER NOT NULL,
    failures   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
    root_hash TEXT NOT NULL,
    path      TEXT NOT NULL,
    offset    INTEGER NOT NULL,
    length    INTEGER NOT NULL,
    format    TEXT NOT NULL,
    labels    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS artifacts_by_session ON artifacts (root_hash);
CREATE INDEX IF NOT EXISTS artifacts_by_format ON artifacts (format);
`

// Config holds the parameters for opening a catalog.
type Config struct {
	// Path is the database file path. The parent directory must
	// exist. ":memory:" works for tests with PoolSize 1.
	Path string

	// PoolSize is the connection pool size. Zero means 4.
	PoolSize int

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Catalog is a connection pool over the result database. Safe for
// concurrent use; individual connections are not shared.
type Catalog struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens (creating if needed) the catalog at cfg.Path.
func Open(cfg Config) (*Catalog, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("resultdb: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("resultdb: opening %s: %w", cfg.Path, err)
	}

	logger.Info("result catalog opened", "path", cfg.Path, "pool_size", poolSize)
	return &Catalog{pool: pool, logger: logger, path: cfg.Path}, nil
}

// prepareConnection applies the standard pragmas and creates the
// schema. Runs once per connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("resultdb: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("resultdb: creating schema: %w", err)
	}
	return nil
}

// Close closes all connections. Blocks until borrowed connections
// are returned.
func (c *Catalog) Close() error {
	if err := c.pool.Close(); err != nil {
		return fmt.Errorf("resultdb: closing %s: %w", c.path, err)
	}
	c.logger.Info("result catalog closed", "path", c.path)
	return nil
}

// Seen reports whether a session with this root hash is already
// cataloged, so unchanged inputs can be skipped.
func (c *Catalog) Seen(ctx context.Context, rootHash string) (bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("resultdb: take: %w", err)
	}
	defer c.pool.Put(conn)

	seen := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM sessions WHERE root_hash = ?", &sqlitex.ExecOptions{
		Args: []any{rootHash},
		ResultFunc: func(*sqlite.Stmt) error {
			seen = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("resultdb: querying session: %w", err)
	}
	return seen, nil
}

// Record stores a session document, replacing any previous session
// with the same root hash together with its artifact rows.
func (c *Catalog) Record(ctx context.Context, doc *report.Document) (err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("resultdb: take: %w", err)
	}
	defer c.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("resultdb: starting transaction: %w", err)
	}
	defer endFn(&err)

	err = sqlitex.Execute(conn, "DELETE FROM artifacts WHERE root_hash = ?", &sqlitex.ExecOptions{
		Args: []any{doc.RootHash},
	})
	if err != nil {
		return fmt.Errorf("resultdb: clearing artifacts: %w", err)
	}
	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO sessions
		 (root_hash, root_size, scanned_at, tool, incomplete, failures)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				doc.RootHash, doc.RootSize, doc.ScannedAt, doc.Tool,
				boolToInt(doc.Incomplete), len(doc.Failures),
			},
		})
	if err != nil {
		return fmt.Errorf("resultdb: inserting session: %w", err)
	}

	if err := insertArtifacts(conn, doc.RootHash, "", doc.Root); err != nil {
		return err
	}
	return nil
}

func insertArtifacts(conn *sqlite.Conn, rootHash, parentPath string, node *report.Node) error {
	path := parentPath
	if node.PathHint != "" {
		path = parentPath + "/" + node.PathHint
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO artifacts (root_hash, path, offset, length, format, labels)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				rootHash, path, node.Offset, node.Length, node.Format,
				strings.Join(node.Labels, ","),
			},
		})
	if err != nil {
		return fmt.Errorf("resultdb: inserting artifact %s: %w", path, err)
	}
	for _, child := range node.Children {
		if err := insertArtifacts(conn, rootHash, path, child); err != nil {
			return err
		}
	}
	return nil
}

// ArtifactRow is one cataloged artifact.
type ArtifactRow struct {
	Path   string
	Offset int64
	Length int64
	Format string
	Labels []string
}

// Artifacts returns the cataloged rows for a session in path order.
func (c *Catalog) Artifacts(ctx context.Context, rootHash string) ([]ArtifactRow, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("resultdb: take: %w", err)
	}
	defer c.pool.Put(conn)

	var rows []ArtifactRow
	err = sqlitex.Execute(conn,
		`SELECT path, offset, length, format, labels FROM artifacts
		 WHERE root_hash = ? ORDER BY path, offset`,
		&sqlitex.ExecOptions{
			Args: []any{rootHash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row := ArtifactRow{
					Path:   stmt.ColumnText(0),
					Offset: stmt.ColumnInt64(1),
					Length: stmt.ColumnInt64(2),
					Format: stmt.ColumnText(3),
				}
				if labels := stmt.ColumnText(4); labels != "" {
					row.Labels = strings.Split(labels, ",")
				}
				rows = append(rows, row)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("resultdb: querying artifacts: %w", err)
	}
	return rows, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
