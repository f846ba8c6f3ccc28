package searcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/query"
	"github.com/Aman-CERP/roomsearch/internal/schema"
	"github.com/Aman-CERP/roomsearch/internal/store"
)

// snapshotRef shares one engine snapshot between the reader and the
// searchers handed out from it. The last release closes the snapshot.
type snapshotRef struct {
	snap store.Snapshot
	refs atomic.Int32
}

func newSnapshotRef(snap store.Snapshot) *snapshotRef {
	ref := &snapshotRef{snap: snap}
	ref.refs.Store(1)
	return ref
}

func (r *snapshotRef) acquire() {
	r.refs.Add(1)
}

func (r *snapshotRef) release() {
	if r.refs.Add(-1) == 0 {
		_ = r.snap.Close()
	}
}

// Reader holds the snapshot searches run against. The snapshot only moves
// forward when the reader reloads, so committed documents become visible
// at reload time and not before.
//
// Reader is safe for concurrent use.
type Reader struct {
	engine store.Engine
	schema *schema.RoomMessageSchema
	parser *query.Parser
	config ReaderConfig
	logger *slog.Logger

	group   singleflight.Group
	reloads atomic.Uint64

	mu        sync.Mutex
	current   *snapshotRef
	timer     *time.Timer
	reloadErr error
	closed    bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithSchema sets the schema used to read primary keys. Defaults to the
// canonical room message schema.
func WithSchema(s *schema.RoomMessageSchema) Option {
	return func(r *Reader) {
		if s != nil {
			r.schema = s
		}
	}
}

// WithParser sets the query parser. Defaults to a parser for the schema.
func WithParser(p *query.Parser) Option {
	return func(r *Reader) {
		if p != nil {
			r.parser = p
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReader creates a reader and takes its first snapshot.
func NewReader(engine store.Engine, config ReaderConfig, opts ...Option) (*Reader, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if config.Policy == "" {
		config.Policy = ReloadManual
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Reader{
		engine: engine,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.schema == nil {
		r.schema = schema.New()
	}
	if r.parser == nil {
		r.parser = query.NewParser(r.schema)
	}

	snap, err := engine.Snapshot()
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "take initial snapshot")
	}
	r.current = newSnapshotRef(snap)

	return r, nil
}

// Reload blocks until the snapshot reflects at least the engine's last
// commit at the time of the call. Concurrent calls share one reload.
func (r *Reader) Reload(ctx context.Context) error {
	target, err := r.engine.LastOpStamp()
	if err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "read last opstamp")
	}

	for {
		_, err, _ := r.group.Do("reload", func() (interface{}, error) {
			return nil, r.reload(ctx)
		})
		if err != nil {
			return err
		}
		if r.OpStamp() >= target {
			return nil
		}
	}
}

func (r *Reader) reload(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return readerClosed()
	}
	r.mu.Unlock()

	snap, err := r.engine.Snapshot()
	if err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "take snapshot")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = snap.Close()
		return readerClosed()
	}
	old := r.current
	if old.snap.OpStamp() == snap.OpStamp() {
		r.mu.Unlock()
		_ = snap.Close()
		return nil
	}
	r.current = newSnapshotRef(snap)
	r.mu.Unlock()

	old.release()
	r.reloads.Add(1)

	r.logger.DebugContext(ctx, "reader_reloaded",
		slog.Uint64("opstamp", uint64(snap.OpStamp())),
		slog.Uint64("previous_opstamp", uint64(old.snap.OpStamp())))
	return nil
}

// NotifyCommit reports a commit. Under ReloadOnCommitWithDelay it schedules
// a background reload; under ReloadManual it does nothing. Commits that
// arrive while a reload is scheduled share it.
func (r *Reader) NotifyCommit(stamp store.OpStamp) {
	if r.config.Policy != ReloadOnCommitWithDelay {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(r.config.ReloadDelay, r.backgroundReload)

	r.logger.Debug("reader_reload_scheduled",
		slog.Uint64("opstamp", uint64(stamp)),
		slog.Duration("delay", r.config.ReloadDelay))
}

// backgroundReload runs a scheduled reload. A failure is kept and returned
// by the next Searcher call.
func (r *Reader) backgroundReload() {
	r.mu.Lock()
	r.timer = nil
	r.mu.Unlock()

	if err := r.Reload(context.Background()); err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.logger.Warn("reader_background_reload_failed", rserrors.LogAttrs(err)...)
		r.reloadErr = err
	}
}

// Searcher returns a searcher over the current snapshot. The searcher keeps
// its snapshot alive across reloads until Release is called.
func (r *Reader) Searcher() (*Searcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, readerClosed()
	}
	if err := r.reloadErr; err != nil {
		r.reloadErr = nil
		return nil, err
	}

	r.current.acquire()
	return &Searcher{
		ref:    r.current,
		schema: r.schema,
		parser: r.parser,
	}, nil
}

// OpStamp returns the commit the current snapshot reflects.
func (r *Reader) OpStamp() store.OpStamp {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return 0
	}
	return r.current.snap.OpStamp()
}

// Stats returns current reader statistics.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		OpStamp: r.OpStamp(),
		Reloads: r.reloads.Load(),
		Policy:  r.config.Policy,
	}
}

// Close releases the reader's snapshot. Searchers still held stay usable
// until released. Safe to call multiple times.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	cur := r.current
	r.current = nil
	r.mu.Unlock()

	if cur != nil {
		cur.release()
	}
	return nil
}

func readerClosed() *rserrors.IndexError {
	return rserrors.New(rserrors.ErrCodeReaderClosed, "reader is closed", nil)
}
