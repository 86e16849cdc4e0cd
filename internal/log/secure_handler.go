package log

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Redacted replaces the value of a credential in log output.
const Redacted = "[redacted]"

// credentialHeaders are the request headers that carry a run's credentials.
var credentialHeaders = map[string]bool{
	"cookie":              true,
	"set-cookie":          true,
	"authorization":       true,
	"proxy-authorization": true,
}

// credentialWords mark an attribute key or a custom header name as a
// credential: "cookie", "X-Auth-Token", "session_id", "wiki_secret".
var credentialWords = []string{"cookie", "auth", "token", "session", "secret", "password"}

// authSchemes prefix Authorization values wherever they are logged.
var authSchemes = []string{"bearer ", "basic "}

// SecureHandler is an slog.Handler that masks the cookie and credential
// headers of a run before handing records to the wrapped handler.
//
// Masked are attributes whose key names a credential, string values that
// start with an HTTP auth scheme, and the credential entries of header maps
// (map[string]string as in a run's headers, or http.Header).
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SecureHandler{handler: h.handler.WithAttrs(maskAttrs(attrs))}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func maskAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = maskAttr(a)
	}
	return out
}

func maskAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskAttrs(v.Group())...)}
	}
	if isCredentialName(a.Key) {
		if v.Kind() == slog.KindString && v.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}

	switch v.Kind() {
	case slog.KindString:
		if hasAuthScheme(v.String()) {
			return slog.String(a.Key, Redacted)
		}
	case slog.KindAny:
		switch headers := v.Any().(type) {
		case map[string]string:
			return slog.Any(a.Key, maskHeaderMap(headers))
		case http.Header:
			return slog.Any(a.Key, maskHTTPHeader(headers))
		}
	}
	return a
}

// maskHeaderMap returns a copy of headers with credential values replaced.
func maskHeaderMap(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if isCredentialName(name) || hasAuthScheme(value) {
			value = Redacted
		}
		out[name] = value
	}
	return out
}

func maskHTTPHeader(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for name, values := range headers {
		if isCredentialName(name) {
			out[name] = []string{Redacted}
			continue
		}
		out[name] = values
	}
	return out
}

func isCredentialName(name string) bool {
	name = strings.ToLower(name)
	if credentialHeaders[name] {
		return true
	}
	for _, word := range credentialWords {
		if strings.Contains(name, word) {
			return true
		}
	}
	return false
}

func hasAuthScheme(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, scheme := range authSchemes {
		if strings.HasPrefix(value, scheme) && len(value) > len(scheme) {
			return true
		}
	}
	return false
}

// NewSecureLogger returns a text logger on w that masks credentials.
// Info reports one line per fetched page; verbose adds request details.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
