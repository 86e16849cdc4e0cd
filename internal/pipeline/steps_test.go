package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/wikioutline/internal/crawler"
	"github.com/nao1215/wikioutline/internal/database"
	"github.com/nao1215/wikioutline/internal/metrics"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/nao1215/wikioutline/internal/report"
)

func TestDefaultPipelineSteps(t *testing.T) {
	t.Parallel()

	t.Run("outline and crawl only", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(nil, []Option{WithLogger(discardLogger())})
		names := p.StepNames()
		if len(names) != 2 || names[0] != "outline" || names[1] != "crawl" {
			t.Errorf("unexpected steps %v", names)
		}
	})

	t.Run("with database and metrics", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		p := DefaultPipeline(nil, nil, WithDatabase(db), WithMetrics(metrics.New()))
		names := p.StepNames()
		want := []string{"outline", "history", "metrics", "crawl"}
		if len(names) != len(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})
}

func TestDefaultPipelineExecute(t *testing.T) {
	t.Parallel()

	srv := newWikiServer(t)
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "db"), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	m := metrics.New()

	p := DefaultPipeline(srv.Client(), []Option{WithLogger(discardLogger())}, WithDatabase(db), WithMetrics(m))
	state := NewRunState(testRun(srv, dir, "wiki a", "/A"))

	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := state.Result
	if result.Status != model.RunStatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", result.Status, result.ErrorMessage)
	}
	if result.Visits != 4 || result.NodesWritten != 4 || result.FetchFailures != 0 {
		t.Errorf("unexpected counters %+v", result)
	}

	wantOutline := report.FormatLine("Page A", srv.URL+"/A", 0) +
		report.FormatLine("B", srv.URL+"/B", 1) +
		report.FormatLine("D", srv.URL+"/D", 2) +
		report.FormatLine("C", srv.URL+"/C", 1)

	t.Run("outline file", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "index_wiki_a.md"))
		if err != nil {
			t.Fatalf("failed to read outline: %v", err)
		}
		if string(data) != wantOutline {
			t.Errorf("unexpected outline:\n%s\nwant:\n%s", data, wantOutline)
		}
	})

	t.Run("history", func(t *testing.T) {
		stored, err := db.GetRun(context.Background(), result.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if stored.Status != model.RunStatusCompleted || stored.NodesWritten != 4 {
			t.Errorf("unexpected stored run %+v", stored)
		}

		records, err := db.GetRunNodes(context.Background(), result.ID)
		if err != nil {
			t.Fatalf("failed to get nodes: %v", err)
		}
		var sb strings.Builder
		for _, r := range records {
			sb.WriteString(report.FormatLine(r.Title, r.URL, r.Depth))
		}
		if sb.String() != wantOutline {
			t.Errorf("stored nodes differ from outline:\n%s", sb.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		path := filepath.Join(dir, "metrics", "wikioutline.prom")
		if err := m.WriteTextfile(path); err != nil {
			t.Fatalf("failed to write metrics: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read metrics: %v", err)
		}
		for _, want := range []string{
			`wikioutline_fetches_total{result="ok",run="wiki a"} 4`,
			`wikioutline_nodes_written_total{run="wiki a"} 4`,
			`wikioutline_runs_total{status="completed"} 1`,
		} {
			if !strings.Contains(string(data), want) {
				t.Errorf("expected %q in metrics:\n%s", want, data)
			}
		}
	})
}

func TestCrawlStepDo(t *testing.T) {
	t.Parallel()

	t.Run("missing start page fails the run", func(t *testing.T) {
		t.Parallel()

		srv := newWikiServer(t)
		dir := t.TempDir()

		p := DefaultPipeline(srv.Client(), []Option{WithLogger(discardLogger())})
		state := NewRunState(testRun(srv, dir, "missing", "/missing"))

		err := p.Execute(context.Background(), state)
		if !errors.Is(err, crawler.ErrStartPageUnavailable) {
			t.Fatalf("expected ErrStartPageUnavailable, got %v", err)
		}
		if state.Result.Status != model.RunStatusFailed || state.Result.FetchFailures != 1 {
			t.Errorf("unexpected result %+v", state.Result)
		}

		data, err := os.ReadFile(state.Result.OutputPath)
		if err != nil {
			t.Fatalf("expected empty outline to exist: %v", err)
		}
		if len(data) != 0 {
			t.Errorf("expected empty outline, got %q", data)
		}
	})

	t.Run("depth and link limits are applied", func(t *testing.T) {
		t.Parallel()

		srv := newWikiServer(t)
		run := testRun(srv, t.TempDir(), "limited", "/A")
		run.MaxDepth = 1
		run.MaxLinks = 2

		state := NewRunState(run)
		state.AddNodeWriter(nil)
		if err := NewCrawlStep(srv.Client(), WithCrawlLogger(discardLogger())).Do(context.Background(), state); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Result.Visits != 2 || state.Result.Root == nil || state.Result.Root.Count() != 2 {
			t.Errorf("unexpected result %+v", state.Result)
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		t.Parallel()

		srv := newWikiServer(t)
		run := testRun(srv, t.TempDir(), "bad", "/A")
		run.BaseURL = "not a url"

		err := NewCrawlStep(nil).Do(context.Background(), NewRunState(run))
		if !errors.Is(err, crawler.ErrInvalidBaseURL) {
			t.Errorf("expected ErrInvalidBaseURL, got %v", err)
		}
	})

	t.Run("fetcher wrappers see every fetch", func(t *testing.T) {
		t.Parallel()

		srv := newWikiServer(t)
		state := NewRunState(testRun(srv, t.TempDir(), "wrapped", "/A"))
		counter := &countingFetcher{}
		state.WrapFetcher(func(next crawler.Fetcher) crawler.Fetcher {
			counter.next = next
			return counter
		})

		if err := NewCrawlStep(srv.Client(), WithCrawlLogger(discardLogger())).Do(context.Background(), state); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counter.calls != 4 {
			t.Errorf("expected 4 fetches, got %d", counter.calls)
		}
	})
}

type countingFetcher struct {
	next  crawler.Fetcher
	calls int
}

func (c *countingFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	c.calls++
	return c.next.Fetch(ctx, pageURL)
}

func TestOutlineStepDo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := NewRunState(testRun(newWikiServer(t), filepath.Join(dir, "nested"), "norme comuni", "/A"))
	if err := os.MkdirAll(filepath.Dir(state.Result.OutputPath), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(state.Result.OutputPath, []byte("stale\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := NewOutlineStep(discardLogger()).Do(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(state.Result.OutputPath)
	if err != nil {
		t.Fatalf("failed to read outline: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected truncated outline, got %q", data)
	}
	if len(state.writers) != 1 {
		t.Errorf("expected one registered writer, got %d", len(state.writers))
	}
}

func TestDefaultPipelineKeepGoing(t *testing.T) {
	t.Parallel()

	srv := newWikiServer(t)

	newClosedDB := func(t *testing.T) *database.CrawlDB {
		t.Helper()
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
		return db
	}

	t.Run("history failure stops the run by default", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		p := DefaultPipeline(srv.Client(), []Option{WithLogger(discardLogger())}, WithDatabase(newClosedDB(t)))
		state := NewRunState(testRun(srv, dir, "wiki a", "/A"))

		if err := p.Execute(context.Background(), state); err == nil {
			t.Fatal("expected history error")
		}
		if state.Result.Visits != 0 {
			t.Errorf("expected no crawl, got %d visits", state.Result.Visits)
		}
	})

	t.Run("keep going crawls despite history failure", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		p := DefaultPipeline(srv.Client(),
			[]Option{WithLogger(discardLogger()), WithContinueOnError(true)},
			WithDatabase(newClosedDB(t)))
		state := NewRunState(testRun(srv, dir, "wiki a", "/A"))

		if err := p.Execute(context.Background(), state); err == nil {
			t.Fatal("expected history error")
		}
		if state.Result.Status != model.RunStatusFailed {
			t.Errorf("expected failed status, got %q", state.Result.Status)
		}
		if state.Result.NodesWritten != 4 {
			t.Errorf("expected 4 lines written, got %d", state.Result.NodesWritten)
		}

		data, err := os.ReadFile(filepath.Join(dir, "index_wiki_a.md"))
		if err != nil {
			t.Fatalf("failed to read outline: %v", err)
		}
		if n := strings.Count(string(data), "\n"); n != 4 {
			t.Errorf("expected 4 outline lines, got %d:\n%s", n, data)
		}
	})
}
