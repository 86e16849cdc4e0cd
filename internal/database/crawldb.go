package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/wikioutline/internal/model"
)

// DBFileName is the name of the database file inside the database directory.
const DBFileName = "wikioutline.db"

// CrawlDB provides SQLite-based storage for run history.
// A single database file holds every run, so history queries need no
// directory scanning.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; concurrent runs share this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the path of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		start_url TEXT NOT NULL,
		output_path TEXT NOT NULL,
		status TEXT NOT NULL,
		visits INTEGER NOT NULL DEFAULT 0,
		fetch_failures INTEGER NOT NULL DEFAULT 0,
		nodes_written INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start_url ON crawl_runs(start_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON crawl_runs(started_at);

	-- Outline lines of a run, in write order
	CREATE TABLE IF NOT EXISTS crawl_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run ON crawl_nodes(run_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_url ON crawl_nodes(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun inserts run with status running and stores the new ID in run.ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, run *model.RunResult) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	query := `
	INSERT INTO crawl_runs (title, start_url, output_path, status, started_at)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := cdb.db.ExecContext(ctx, query,
		run.Title,
		run.StartURL,
		run.OutputPath,
		string(run.Status),
		formatTimestamp(run.StartedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run ID: %w", err)
	}
	run.ID = id
	return id, nil
}

// FinishRun stores the final status, statistics and end time of run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, run *model.RunResult) error {
	if run.ID == 0 {
		return fmt.Errorf("%w: run has no ID", ErrRunNotFound)
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	query := `
	UPDATE crawl_runs
	SET status = ?, visits = ?, fetch_failures = ?, nodes_written = ?, error_message = ?, finished_at = ?
	WHERE id = ?
	`

	result, err := cdb.db.ExecContext(ctx, query,
		string(run.Status),
		run.Visits,
		run.FetchFailures,
		run.NodesWritten,
		run.ErrorMessage,
		formatTimestamp(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
	}
	return nil
}

// RecordNode stores one outline line of a run.
func (cdb *CrawlDB) RecordNode(ctx context.Context, runID int64, seq, depth int, node *model.CrawlNode) error {
	query := `
	INSERT INTO crawl_nodes (run_id, seq, depth, title, url)
	VALUES (?, ?, ?, ?, ?)
	`

	if _, err := cdb.db.ExecContext(ctx, query, runID, seq, depth, node.Title, node.URL); err != nil {
		return fmt.Errorf("failed to record node: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns ErrRunNotFound for unknown IDs.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.RunResult, error) {
	query := `
	SELECT id, title, start_url, output_path, status, visits, fetch_failures, nodes_written, error_message, started_at, finished_at
	FROM crawl_runs
	WHERE id = ?
	`

	run, err := scanRun(cdb.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
// limit <= 0 returns every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, limit int) ([]*model.RunResult, error) {
	query := `
	SELECT id, title, start_url, output_path, status, visits, fetch_failures, nodes_written, error_message, started_at, finished_at
	FROM crawl_runs
	ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListRunsByStartURL returns the runs that started from startURL, newest
// first. limit <= 0 returns every run.
func (cdb *CrawlDB) ListRunsByStartURL(ctx context.Context, startURL string, limit int) ([]*model.RunResult, error) {
	query := `
	SELECT id, title, start_url, output_path, status, visits, fetch_failures, nodes_written, error_message, started_at, finished_at
	FROM crawl_runs
	WHERE start_url = ?
	ORDER BY id DESC
	`
	args := []any{startURL}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// NodeRecord is one stored outline line.
type NodeRecord struct {
	Seq   int
	Depth int
	Title string
	URL   string
}

// GetRunNodes returns the outline lines of a run in write order.
func (cdb *CrawlDB) GetRunNodes(ctx context.Context, runID int64) ([]NodeRecord, error) {
	query := `
	SELECT seq, depth, title, url FROM crawl_nodes
	WHERE run_id = ?
	ORDER BY seq ASC
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var records []NodeRecord
	for rows.Next() {
		var r NodeRecord
		if err := rows.Scan(&r.Seq, &r.Depth, &r.Title, &r.URL); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// RebuildTree turns pre-order outline lines back into a tree.
// A line deeper than its predecessor plus one is attached to the nearest
// shallower node. It returns nil for an empty list.
func RebuildTree(records []NodeRecord) *model.CrawlNode {
	if len(records) == 0 {
		return nil
	}

	root := model.NewCrawlNode(records[0].Title, records[0].URL)
	stack := []*model.CrawlNode{root}

	for _, r := range records[1:] {
		node := model.NewCrawlNode(r.Title, r.URL)
		depth := r.Depth
		if depth < 1 {
			depth = 1
		}
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = stack[:depth]
		stack[depth-1].AddChild(node)
		stack = append(stack, node)
	}

	return root
}

// NodeRecorder stores the nodes of one run as they are written.
// It satisfies the node writer contract of the crawler.
type NodeRecorder struct {
	mu    sync.Mutex
	db    *CrawlDB
	runID int64
	seq   int
}

// NodeRecorder returns a recorder that appends nodes to run runID.
func (cdb *CrawlDB) NodeRecorder(runID int64) *NodeRecorder {
	return &NodeRecorder{db: cdb, runID: runID}
}

// AppendNode records node as the next line of the run.
func (r *NodeRecorder) AppendNode(ctx context.Context, node *model.CrawlNode, depth int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.RecordNode(ctx, r.runID, r.seq, depth, node); err != nil {
		return err
	}
	r.seq++
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunResult, error) {
	var run model.RunResult
	var status, startedAt, finishedAt string

	if err := row.Scan(
		&run.ID,
		&run.Title,
		&run.StartURL,
		&run.OutputPath,
		&status,
		&run.Visits,
		&run.FetchFailures,
		&run.NodesWritten,
		&run.ErrorMessage,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)
	return &run, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // written by formatTimestamp
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// It returns the zero time for empty or unparseable input.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
