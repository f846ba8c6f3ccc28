package roomindex

import (
	"log/slog"

	"github.com/Aman-CERP/roomsearch/internal/query"
	"github.com/Aman-CERP/roomsearch/pkg/indexer"
	"github.com/Aman-CERP/roomsearch/pkg/searcher"
)

type options struct {
	writer indexer.Config
	reader searcher.ReaderConfig
	query  query.Config
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		writer: indexer.DefaultConfig(),
		reader: searcher.DefaultReaderConfig(),
		query:  query.DefaultConfig(),
		logger: slog.Default(),
	}
}

// Option configures a RoomIndex.
type Option func(*options)

// WithWriterConfig sets when staged events are committed.
func WithWriterConfig(cfg indexer.Config) Option {
	return func(o *options) {
		o.writer = cfg
	}
}

// WithReaderConfig sets when commits become searchable.
func WithReaderConfig(cfg searcher.ReaderConfig) Option {
	return func(o *options) {
		o.reader = cfg
	}
}

// WithQueryConfig sets query length and cache limits.
func WithQueryConfig(cfg query.Config) Option {
	return func(o *options) {
		o.query = cfg
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
