package log

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/wikioutline/internal/crawler"
)

// decodeRecord parses the single JSON record written to buf.
func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log record: %v\n%s", err, buf.String())
	}
	return record
}

func TestSecureHandlerMasksRunCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr slog.Attr
		want any
	}{
		{"run cookie", slog.String("cookie", "wikiSession=3f9a; wikiUserID=7"), Redacted},
		{"cookie key in another case", slog.String("Cookie", "wikiSession=3f9a"), Redacted},
		{"empty cookie stays visible", slog.String("cookie", ""), ""},
		{"session key", slog.String("wiki_session", "3f9a"), Redacted},
		{"token key", slog.String("csrf_token", "d41d8cd9+\\"), Redacted},
		{"bearer value under any key", slog.String("value", "Bearer 3f9a"), Redacted},
		{"basic value under any key", slog.String("value", "basic dXNlcjpwdw=="), Redacted},
		{"bare scheme word is kept", slog.String("value", "Basic"), "Basic"},
		{"page url", slog.String("url", "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"), "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"},
		{"run title", slog.String("run", "norme comuni"), "norme comuni"},
		{"non-string credential", slog.Int("session", 42), Redacted},
		{"depth", slog.Int("depth", 3), float64(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			NewSecureJSONLogger(&buf, true).LogAttrs(context.Background(), slog.LevelInfo, "msg", tt.attr)

			record := decodeRecord(t, &buf)
			if got := record[tt.attr.Key]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.attr.Key, got, tt.want)
			}
		})
	}
}

func TestSecureHandlerMasksHeaderMaps(t *testing.T) {
	t.Parallel()

	t.Run("run headers", func(t *testing.T) {
		t.Parallel()

		headers := map[string]string{
			"Authorization":   "Bearer 3f9a",
			"X-Wiki-Token":    "opaque",
			"Accept-Language": "it-IT",
			"X-Forwarded-For": "basic 10.0.0.1",
		}

		var buf bytes.Buffer
		NewSecureJSONLogger(&buf, false).Info("run configured", "headers", headers)

		got, ok := decodeRecord(t, &buf)["headers"].(map[string]any)
		if !ok {
			t.Fatalf("expected headers object, got %s", buf.String())
		}
		want := map[string]string{
			"Authorization":   Redacted,
			"X-Wiki-Token":    Redacted,
			"Accept-Language": "it-IT",
			"X-Forwarded-For": Redacted,
		}
		for name, value := range want {
			if got[name] != value {
				t.Errorf("headers[%s] = %v, want %q", name, got[name], value)
			}
		}
		if headers["Authorization"] != "Bearer 3f9a" {
			t.Error("input header map must not be modified")
		}
	})

	t.Run("http.Header", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("Cookie", "wikiSession=3f9a")
		h.Set("User-Agent", "wikioutline/1.0")

		var buf bytes.Buffer
		NewSecureLogger(&buf, false).Info("request", "headers", h)

		out := buf.String()
		if strings.Contains(out, "3f9a") {
			t.Errorf("expected cookie to be masked, got: %s", out)
		}
		if !strings.Contains(out, "wikioutline/1.0") {
			t.Errorf("expected user agent to stay visible, got: %s", out)
		}
		if h.Get("Cookie") != "wikiSession=3f9a" {
			t.Error("input header must not be modified")
		}
	})
}

func TestSecureHandlerMasksFetcherRequestLog(t *testing.T) {
	t.Parallel()

	received := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()
		_, _ = io.WriteString(w, "<html><body></body></html>")
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	fetcher := crawler.NewHTTPFetcher(srv.Client(),
		crawler.WithDelay(0),
		crawler.WithCookie("wikiSession=3f9a"),
		crawler.WithHeaders(map[string]string{"Authorization": "Bearer c0ffee", "Accept-Language": "it-IT"}),
		crawler.WithFetcherLogger(NewSecureLogger(&buf, true)),
	)

	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/index.php?title=Norme_comuni"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := <-received
	if sent.Get("Cookie") != "wikiSession=3f9a" || sent.Get("Authorization") != "Bearer c0ffee" {
		t.Errorf("credentials must reach the server unmasked, got %v", sent)
	}

	out := buf.String()
	for _, secret := range []string{"3f9a", "c0ffee"} {
		if strings.Contains(out, secret) {
			t.Errorf("expected %q to be masked in:\n%s", secret, out)
		}
	}
	for _, visible := range []string{"sending request", "title=Norme_comuni", "it-IT"} {
		if !strings.Contains(out, visible) {
			t.Errorf("expected %q in:\n%s", visible, out)
		}
	}
}

func TestSecureHandlerWithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, false).
		With("cookie", "wikiSession=3f9a").
		WithGroup("run").
		With(slog.Group("auth", "header", "Bearer c0ffee"), "title", "norme comuni")
	logger.Info("crawl started", slog.Group("request", "authorization", "Basic dXNlcg=="))

	out := buf.String()
	for _, secret := range []string{"3f9a", "c0ffee", "dXNlcg"} {
		if strings.Contains(out, secret) {
			t.Errorf("expected %q to be masked in:\n%s", secret, out)
		}
	}
	if !strings.Contains(out, "norme comuni") {
		t.Errorf("expected run title in:\n%s", out)
	}
}

func TestSecureLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"info by default", false, false},
		{"debug when verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for _, newLogger := range []func(io.Writer, bool) *slog.Logger{NewSecureLogger, NewSecureJSONLogger} {
				var buf bytes.Buffer
				logger := newLogger(&buf, tt.verbose)
				logger.Debug("sending request")
				logger.Info("fetching page")

				if got := strings.Contains(buf.String(), "sending request"); got != tt.wantDebug {
					t.Errorf("debug record logged = %v, want %v", got, tt.wantDebug)
				}
				if !strings.Contains(buf.String(), "fetching page") {
					t.Error("expected info record")
				}
			}
		})
	}
}

func TestNewSecureHandlerNil(t *testing.T) {
	t.Parallel()

	h := NewSecureHandler(nil)
	if h.handler == nil {
		t.Fatal("expected default handler")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected default handler to accept errors")
	}
}
