// Package log builds the slog loggers of wikioutline.
//
// A run may carry a session cookie and extra headers (for example an
// Authorization header for a protected wiki), and the fetcher logs both at
// debug level. SecureHandler masks them:
//   - attributes whose key names a credential (cookie, auth, token, session)
//   - string values that start with an HTTP auth scheme (Bearer, Basic)
//   - credential entries of header maps, map[string]string or http.Header
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("sending request", "url", u, "cookie", cookie) // cookie=[redacted]
//	slog.SetDefault(logger)
package log
