package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/wikioutline/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, DBFileName)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("expected path %q, got %q", dbPath, db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")

		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := context.Background()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		run := &model.RunResult{Title: "t", StartURL: "https://wiki.test/A", OutputPath: "o.md"}
		if _, err := db1.StartRun(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		got, err := db2.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Title != "t" {
			t.Errorf("data did not persist, got %+v", got)
		}
	})
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &model.RunResult{
		Title:      "norme comuni",
		StartURL:   "https://wiki.test/A",
		OutputPath: "indexes/index_norme_comuni.md",
		StartedAt:  started,
	}

	id, err := db.StartRun(ctx, run)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("expected run ID to be set, got %d / %d", id, run.ID)
	}

	stored, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if stored.Status != model.RunStatusRunning {
		t.Errorf("expected running status, got %q", stored.Status)
	}
	if !stored.StartedAt.Equal(started) {
		t.Errorf("expected start %v, got %v", started, stored.StartedAt)
	}
	if !stored.FinishedAt.IsZero() {
		t.Errorf("expected no finish time, got %v", stored.FinishedAt)
	}

	run.Status = model.RunStatusCompleted
	run.Visits = 4
	run.FetchFailures = 1
	run.NodesWritten = 4
	run.FinishedAt = started.Add(3 * time.Second)
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	stored, err = db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if stored.Status != model.RunStatusCompleted || stored.Visits != 4 || stored.FetchFailures != 1 || stored.NodesWritten != 4 {
		t.Errorf("unexpected stored run %+v", stored)
	}
	if stored.Duration() != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", stored.Duration())
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	if _, err := db.GetRun(context.Background(), 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := db.FinishRun(context.Background(), &model.RunResult{ID: 42}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := db.FinishRun(context.Background(), &model.RunResult{}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound for a run without ID, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := db.StartRun(ctx, &model.RunResult{Title: title, StartURL: "https://wiki.test/" + title, OutputPath: title + ".md"}); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].Title != "third" || runs[2].Title != "first" {
		t.Errorf("expected newest first, got %v", titles(runs))
	}

	limited, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}
}

func TestListRunsByStartURL(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, u := range []string{"https://wiki.test/A", "https://wiki.test/B", "https://wiki.test/A"} {
		if _, err := db.StartRun(ctx, &model.RunResult{Title: "t", StartURL: u, OutputPath: "o.md"}); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
	}

	runs, err := db.ListRunsByStartURL(ctx, "https://wiki.test/A", 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != 3 || runs[1].ID != 1 {
		t.Errorf("unexpected runs %+v", runs)
	}

	none, err := db.ListRunsByStartURL(ctx, "https://wiki.test/Z", 5)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no runs, got %d", len(none))
	}
}

func TestNodeRecorder(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	run := &model.RunResult{Title: "t", StartURL: "https://wiki.test/A", OutputPath: "o.md"}
	if _, err := db.StartRun(ctx, run); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	rec := db.NodeRecorder(run.ID)
	lines := []struct {
		title string
		depth int
	}{
		{"A", 0}, {"B", 1}, {"D", 2}, {"C", 1},
	}
	for _, l := range lines {
		if err := rec.AppendNode(ctx, model.NewCrawlNode(l.title, "https://wiki.test/"+l.title), l.depth); err != nil {
			t.Fatalf("failed to record %s: %v", l.title, err)
		}
	}

	records, err := db.GetRunNodes(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get nodes: %v", err)
	}
	if len(records) != len(lines) {
		t.Fatalf("expected %d records, got %d", len(lines), len(records))
	}
	for i, r := range records {
		if r.Seq != i || r.Title != lines[i].title || r.Depth != lines[i].depth {
			t.Errorf("record %d = %+v", i, r)
		}
	}

	root := RebuildTree(records)
	if root.Count() != 4 || root.MaxDepth() != 2 {
		t.Errorf("unexpected rebuilt tree: count=%d depth=%d", root.Count(), root.MaxDepth())
	}
	if root.Children[0].Title != "B" || root.Children[0].Children[0].Title != "D" || root.Children[1].Title != "C" {
		t.Errorf("unexpected tree shape %+v", root)
	}
}

func TestRebuildTree(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		if RebuildTree(nil) != nil {
			t.Error("expected nil tree")
		}
	})

	t.Run("depth jumps attach to the deepest open node", func(t *testing.T) {
		t.Parallel()

		root := RebuildTree([]NodeRecord{
			{Depth: 0, Title: "A"},
			{Depth: 3, Title: "X"},
			{Depth: 1, Title: "B"},
		})
		if len(root.Children) != 2 || root.Children[0].Title != "X" || root.Children[1].Title != "B" {
			t.Errorf("unexpected tree %+v", root)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		zero  bool
	}{
		{"2026-03-01T10:00:00.123456789Z", false},
		{"2026-03-01T10:00:00Z", false},
		{"2026-03-01 10:00:00", false},
		{"", true},
		{"not a time", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.input, got)
			}
		})
	}
}

func titles(runs []*model.RunResult) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Title)
	}
	return out
}
