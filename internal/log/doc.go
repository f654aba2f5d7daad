// Package log provides slog loggers that mask sensitive values.
//
// Pages expose cookies, web storage and request headers, all of which end up
// in debug output while crawling. SecureHandler wraps any slog.Handler and
// replaces such values with MaskValue, both by attribute key (cookie,
// authorization, localStorage, ...) and by value pattern (JWTs, bearer tokens).
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true)
//	logger.Debug("page state", "url", u, "cookies", c) // cookies is masked
//	slog.SetDefault(logger)
//
// NewSecureLogger renders through charmbracelet/log for terminals;
// NewSecureJSONLogger and NewSecureTextLogger use the slog built-in handlers.
package log
