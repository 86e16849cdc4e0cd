package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/nao1215/markdown"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/wikioutline/internal/model"
)

const (
	// outlineIndent is repeated once per depth level.
	outlineIndent = "  "

	// unsafeFileChars are replaced in output file names.
	unsafeFileChars = `/\:*?"<>|`

	outlineFileMode = 0o644
	outlineDirMode  = 0o750
)

// FormatLine renders one outline line, newline included.
//
//	strings.Repeat("  ", depth) + "- [title](url)\n"
//
// The title is folded onto one line with its brackets escaped, and spaces
// and parentheses in the URL are percent-encoded, so the line stays a single
// list item whatever the page calls itself.
func FormatLine(title, url string, depth int) string {
	if depth < 0 {
		depth = 0
	}
	return strings.Repeat(outlineIndent, depth) + "- " + markdown.Link(linkText(title), linkTarget(url)) + "\n"
}

var (
	linkTextEscaper   = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	linkTargetEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")
)

func linkText(title string) string {
	return linkTextEscaper.Replace(strings.Join(strings.Fields(title), " "))
}

func linkTarget(url string) string {
	return linkTargetEscaper.Replace(strings.TrimSpace(url))
}

// Slug turns a run title into a file name fragment: NFC normalized, with
// every run of whitespace and every filename-unsafe character replaced by
// an underscore.
func Slug(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))

	var sb strings.Builder
	inSpace := false
	for _, r := range title {
		if unicode.IsSpace(r) {
			if !inSpace {
				sb.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if unicode.IsControl(r) || strings.ContainsRune(unsafeFileChars, r) {
			sb.WriteByte('_')
			continue
		}
		sb.WriteRune(r)
	}

	if sb.Len() == 0 {
		return "untitled"
	}
	return sb.String()
}

// OutlinePath returns the outline file path of a run.
func OutlinePath(outputDir, title string) string {
	return filepath.Join(outputDir, "index_"+Slug(title)+".md")
}

// OutlineWriter persists a crawl as an indented Markdown list.
//
// Every AppendNode rewrites the whole file from an in-memory buffer through
// a temporary file and a rename, so the file on disk is always a complete
// prefix of the outline even if the process dies mid-write.
type OutlineWriter struct {
	mu    sync.Mutex
	path  string
	buf   bytes.Buffer
	lines int
}

// NewOutlineWriter creates the parent directories and truncates path to an
// empty outline.
func NewOutlineWriter(path string) (*OutlineWriter, error) {
	w := &OutlineWriter{path: path}
	if err := w.flush(); err != nil {
		return nil, err
	}
	return w, nil
}

// AppendNode appends the line of node at depth and rewrites the file.
// On failure the line is dropped from the buffer so buffer and file agree.
func (w *OutlineWriter) AppendNode(_ context.Context, node *model.CrawlNode, depth int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.buf.Len()
	w.buf.WriteString(FormatLine(node.Title, node.URL, depth))
	if err := w.flush(); err != nil {
		w.buf.Truncate(prev)
		return err
	}
	w.lines++
	return nil
}

// Path returns the outline file path.
func (w *OutlineWriter) Path() string {
	return w.path
}

// Lines returns the number of persisted lines.
func (w *OutlineWriter) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Content returns a copy of the persisted outline.
func (w *OutlineWriter) Content() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *OutlineWriter) flush() error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, outlineDirMode); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary outline: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(w.buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("failed to write outline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("failed to sync outline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to close outline: %w", err)
	}
	if err := os.Chmod(name, outlineFileMode); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to set outline permissions: %w", err)
	}
	if err := os.Rename(name, w.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to replace outline: %w", err)
	}
	return nil
}

// WriteOutline renders a whole tree in pre-order.
func WriteOutline(out io.Writer, root *model.CrawlNode) (int, error) {
	var sb strings.Builder
	root.Walk(func(node *model.CrawlNode, depth int) bool {
		sb.WriteString(FormatLine(node.Title, node.URL, depth))
		return true
	})
	return io.WriteString(out, sb.String())
}
