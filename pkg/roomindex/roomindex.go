package roomindex

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/query"
	"github.com/Aman-CERP/roomsearch/internal/schema"
	"github.com/Aman-CERP/roomsearch/internal/store"
	"github.com/Aman-CERP/roomsearch/pkg/indexer"
	"github.com/Aman-CERP/roomsearch/pkg/searcher"
)

// RoomIndex is the full-text index of one room's events. It owns the
// document engine and composes the writer, the reader and the query parser
// around it.
//
// Writes never refresh the reader. A committed event is durable as soon as
// the commit returns but becomes searchable only after Reload, or after the
// background reload of ReloadOnCommitWithDelay.
//
// AddEvent, ForceCommit and Close are expected to be called by one writer.
// Search and Reload may be called from any goroutine.
type RoomIndex struct {
	schema *schema.RoomMessageSchema
	engine store.Engine
	writer *indexer.Writer
	reader *searcher.Reader
	parser *query.Parser
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a new durable index at path. It fails if path already holds
// an index.
func New(path string, opts ...Option) (*RoomIndex, error) {
	s := schema.New()
	im, err := s.IndexMapping()
	if err != nil {
		return nil, err
	}

	engine, err := store.CreateEngine(path, im)
	if err != nil {
		return nil, err
	}
	return assemble(engine, s, "create", opts)
}

// NewInRAM creates an index that lives in memory until it is closed.
func NewInRAM(opts ...Option) (*RoomIndex, error) {
	s := schema.New()
	im, err := s.IndexMapping()
	if err != nil {
		return nil, err
	}

	engine, err := store.NewMemEngine(im)
	if err != nil {
		return nil, err
	}
	return assemble(engine, s, "memory", opts)
}

// OpenOrCreate opens the index at path, creating it when there is none.
// An existing index must carry a compatible schema.
func OpenOrCreate(path string, opts ...Option) (*RoomIndex, error) {
	s := schema.New()
	im, err := s.IndexMapping()
	if err != nil {
		return nil, err
	}

	engine, err := store.OpenOrCreateEngine(path, im)
	if err != nil {
		return nil, err
	}
	return openWithStoredSchema(engine, "open_or_create", opts)
}

// Open opens the existing index at path. The schema is derived from the
// index's stored mapping; an index missing a required field fails with an
// error matching ErrSchema.
func Open(path string, opts ...Option) (*RoomIndex, error) {
	engine, err := store.OpenEngine(path)
	if err != nil {
		return nil, err
	}
	return openWithStoredSchema(engine, "open", opts)
}

func openWithStoredSchema(engine store.Engine, mode string, opts []Option) (*RoomIndex, error) {
	s, err := schema.FromMapping(engine.Mapping())
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return assemble(engine, s, mode, opts)
}

// assemble builds the writer, reader and parser over engine. The engine is
// closed if any of them cannot be built.
func assemble(engine store.Engine, s *schema.RoomMessageSchema, mode string, opts []Option) (*RoomIndex, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	parser := query.NewParserWithConfig(s, o.query)

	reader, err := searcher.NewReader(engine, o.reader,
		searcher.WithSchema(s),
		searcher.WithParser(parser),
		searcher.WithLogger(o.logger))
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	writer, err := indexer.NewWriter(engine, s, o.writer,
		indexer.WithLogger(o.logger),
		indexer.WithCommitListener(reader.NotifyCommit))
	if err != nil {
		_ = reader.Close()
		_ = engine.Close()
		return nil, err
	}

	stats := engine.Stats()
	o.logger.Info("room_index_opened",
		slog.String("mode", mode),
		slog.String("path", stats.Path),
		slog.Uint64("documents", stats.DocumentCount),
		slog.Uint64("opstamp", uint64(stats.LastOpStamp)),
		slog.String("reload_policy", string(o.reader.Policy)))

	return &RoomIndex{
		schema: s,
		engine: engine,
		writer: writer,
		reader: reader,
		parser: parser,
		logger: o.logger,
	}, nil
}

// AddEvent stages e and returns the opstamp of the commit that will hold
// it. With the default writer configuration every event is committed before
// AddEvent returns.
//
// When the commit fails for any reason other than the engine rejecting the
// event, the event stays staged and AddEvent returns the error. A later
// AddEvent, ForceCommit or Close may still commit it. Events are keyed by
// id, so adding it again does not duplicate it.
func (r *RoomIndex) AddEvent(ctx context.Context, e Event) (OpStamp, error) {
	doc := r.schema.MakeDoc(e.ID, e.Body, e.Timestamp, e.Sender)
	return r.writer.AddDocument(ctx, doc)
}

// Commit commits staged events if a commit threshold has been reached.
func (r *RoomIndex) Commit(ctx context.Context) (OpStamp, error) {
	return r.writer.Commit(ctx)
}

// ForceCommit commits all staged events. It does not reload the reader.
func (r *RoomIndex) ForceCommit(ctx context.Context) (OpStamp, error) {
	return r.writer.ForceCommit(ctx)
}

// Reload makes every commit made before the call searchable.
func (r *RoomIndex) Reload(ctx context.Context) error {
	return r.reader.Reload(ctx)
}

// Search returns the ids of the events best matching q, at most limit of
// them, most relevant first.
func (r *RoomIndex) Search(ctx context.Context, q string, limit int) ([]string, error) {
	hits, err := r.SearchHits(ctx, q, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// SearchHits is Search with scores.
func (r *RoomIndex) SearchHits(ctx context.Context, q string, limit int) ([]Hit, error) {
	start := time.Now()

	s, err := r.reader.Searcher()
	if err != nil {
		return nil, err
	}
	defer s.Release()

	hits, err := s.SearchResults(ctx, q, limit)
	if err != nil {
		r.logger.DebugContext(ctx, "room_search_failed",
			append([]any{slog.Int("query_length", len(q))}, rserrors.LogAttrs(err)...)...)
		return nil, err
	}

	r.logger.DebugContext(ctx, "room_search",
		slog.Int("query_length", len(q)),
		slog.Int("limit", limit),
		slog.Int("hits", len(hits)),
		slog.Uint64("opstamp", uint64(s.OpStamp())),
		slog.Duration("duration", time.Since(start)))
	return hits, nil
}

// Schema returns the schema the index was built with.
func (r *RoomIndex) Schema() *schema.RoomMessageSchema {
	return r.schema
}

// Stats returns current index statistics.
func (r *RoomIndex) Stats() Stats {
	es := r.engine.Stats()
	ws := r.writer.Stats()
	rs := r.reader.Stats()

	return Stats{
		Path:         es.Path,
		InMemory:     es.InMemory,
		Documents:    es.DocumentCount,
		Committed:    ws.LastCommitted,
		Searchable:   rs.OpStamp,
		Pending:      ws.Pending,
		PendingBytes: ws.PendingBytes,
		Commits:      ws.Commits,
		Reloads:      rs.Reloads,
		ReloadPolicy: rs.Policy,
	}
}

// Close commits staged events, then releases the reader and the engine. If
// the final commit fails the index stays open and the error is returned.
// Safe to call multiple times.
func (r *RoomIndex) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	if err := r.writer.Close(ctx); err != nil {
		return err
	}
	_ = r.reader.Close()

	path := r.engine.Stats().Path
	if err := r.engine.Close(); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeInternal, err, "close index")
	}
	r.closed = true

	r.logger.Info("room_index_closed", slog.String("path", path))
	return nil
}
