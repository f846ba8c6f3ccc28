// Package logging provides structured logging for the roomsearch CLI.
//
// Logs are JSON lines written through log/slog to a size-rotated file under
// ~/.roomsearch/logs/. With --debug the same lines also go to stderr at
// debug level. The library packages only log through slog.Default() or an
// injected logger and never configure output themselves.
package logging
