package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/schema"
	"github.com/Aman-CERP/roomsearch/internal/store"
)

// Default writer configuration values.
const (
	DefaultMemoryBudgetBytes  = 50_000_000
	DefaultMinCommitBatchSize = 1
	DefaultMaxCommitDelay     = 5 * time.Second
)

// docOverheadBytes approximates per-document bookkeeping in the budget.
const docOverheadBytes = 64

// ErrNilEngine is returned when attempting to create a Writer without an engine.
var ErrNilEngine = errors.New("document engine is required")

// Config controls when staged documents are committed.
type Config struct {
	// MemoryBudgetBytes bounds the staged data. Reaching it forces a commit
	// (default: 50 MB).
	MemoryBudgetBytes int64

	// MinCommitBatchSize is how many staged documents trigger a commit.
	// 1 commits every document as it is added (default: 1).
	MinCommitBatchSize int

	// MaxCommitDelay is the longest a staged document waits before a
	// background commit. Zero disables the background commit (default: 5s).
	MaxCommitDelay time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		MemoryBudgetBytes:  DefaultMemoryBudgetBytes,
		MinCommitBatchSize: DefaultMinCommitBatchSize,
		MaxCommitDelay:     DefaultMaxCommitDelay,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MemoryBudgetBytes <= 0 {
		return rserrors.Newf(rserrors.ErrCodeConfigInvalid, "writer memory budget must be positive, got %d", c.MemoryBudgetBytes)
	}
	if c.MinCommitBatchSize < 1 {
		return rserrors.Newf(rserrors.ErrCodeConfigInvalid, "writer min commit batch size must be at least 1, got %d", c.MinCommitBatchSize)
	}
	if c.MaxCommitDelay < 0 {
		return rserrors.Newf(rserrors.ErrCodeConfigInvalid, "writer max commit delay must not be negative, got %s", c.MaxCommitDelay)
	}
	return nil
}

type stagedDoc struct {
	doc  *store.Document
	size int64
}

// Writer stages documents and commits them to a store.Engine in
// all-or-nothing batches, each tagged with the next opstamp.
//
// Writer is safe for concurrent use.
type Writer struct {
	engine store.Engine
	schema *schema.RoomMessageSchema
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	pending      []stagedDoc
	pendingBytes int64
	firstStaged  time.Time
	committed    store.OpStamp
	commits      uint64
	timer        *time.Timer
	deferredErr  error
	listeners    []func(store.OpStamp)
	closed       bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock replaces time.Now for threshold checks.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithCommitListener registers fn to run after every successful commit.
func WithCommitListener(fn func(store.OpStamp)) Option {
	return func(w *Writer) {
		if fn != nil {
			w.listeners = append(w.listeners, fn)
		}
	}
}

// NewWriter creates a writer over engine. The opstamp sequence continues
// from the engine's last commit.
func NewWriter(engine store.Engine, s *schema.RoomMessageSchema, config Config, opts ...Option) (*Writer, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if s == nil {
		s = schema.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		engine: engine,
		schema: s,
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	last, err := engine.LastOpStamp()
	if err != nil {
		return nil, err
	}
	w.committed = last

	return w, nil
}

// OnCommit registers fn to run after every successful commit. Listeners run
// while the writer is locked and must not call back into it.
func (w *Writer) OnCommit(fn func(store.OpStamp)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// AddDocument stages doc and commits when a threshold is reached.
func (w *Writer) AddDocument(ctx context.Context, doc *schema.MessageDocument) (store.OpStamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return 0, err
	}

	if doc == nil || doc.EventID == "" {
		return 0, rserrors.Newf(rserrors.ErrCodeDocumentRejected, "document has no %s", w.schema.PrimaryKey())
	}

	size := documentSize(doc)
	if size > w.config.MemoryBudgetBytes {
		return 0, rserrors.Newf(rserrors.ErrCodeDocumentRejected,
			"document %q is %d bytes, larger than the %d byte memory budget", doc.EventID, size, w.config.MemoryBudgetBytes).
			WithDetail("event_id", doc.EventID)
	}

	if len(w.pending) == 0 {
		w.firstStaged = w.now()
		w.scheduleFlush()
	}
	w.pending = append(w.pending, stagedDoc{
		doc:  &store.Document{ID: doc.EventID, Fields: doc.Fields()},
		size: size,
	})
	w.pendingBytes += size

	if w.thresholdReached() {
		return w.commitLocked(ctx)
	}
	return w.committed + 1, nil
}

// Commit commits staged documents when a threshold is reached.
func (w *Writer) Commit(ctx context.Context) (store.OpStamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return w.committed, err
	}
	if len(w.pending) == 0 || !w.thresholdReached() {
		return w.committed, nil
	}
	return w.commitLocked(ctx)
}

// ForceCommit commits staged documents regardless of thresholds.
func (w *Writer) ForceCommit(ctx context.Context) (store.OpStamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.usable(); err != nil {
		return w.committed, err
	}
	if len(w.pending) == 0 {
		return w.committed, nil
	}
	return w.commitLocked(ctx)
}

// LastCommitted returns the opstamp of the most recent successful commit.
func (w *Writer) LastCommitted() store.OpStamp {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Pending returns the number of staged documents.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns current writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterStats{
		LastCommitted: w.committed,
		Pending:       len(w.pending),
		PendingBytes:  w.pendingBytes,
		Commits:       w.commits,
	}
}

// Close commits staged documents and stops the writer. If that commit fails
// the writer stays open so the caller can retry.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	if len(w.pending) > 0 {
		if _, err := w.commitLocked(ctx); err != nil {
			return err
		}
	}

	w.stopTimer()
	w.closed = true
	w.deferredErr = nil
	return nil
}

// usable reports a closed writer or a failed background commit. The
// background failure is returned once.
func (w *Writer) usable() error {
	if w.closed {
		return rserrors.New(rserrors.ErrCodeWriterClosed, "writer is closed", nil)
	}
	if err := w.deferredErr; err != nil {
		w.deferredErr = nil
		return err
	}
	return nil
}

func (w *Writer) thresholdReached() bool {
	if len(w.pending) >= w.config.MinCommitBatchSize {
		return true
	}
	if w.pendingBytes >= w.config.MemoryBudgetBytes {
		return true
	}
	return w.config.MaxCommitDelay > 0 && w.now().Sub(w.firstStaged) >= w.config.MaxCommitDelay
}

// commitLocked applies every staged document under the next opstamp.
// The caller holds w.mu.
func (w *Writer) commitLocked(ctx context.Context) (store.OpStamp, error) {
	stamp := w.committed + 1
	docs := make([]*store.Document, len(w.pending))
	for i, sd := range w.pending {
		docs[i] = sd.doc
	}

	start := time.Now()
	if err := w.engine.Apply(ctx, docs, stamp); err != nil {
		w.logger.Warn("writer_commit_failed",
			slog.Uint64("opstamp", uint64(stamp)),
			slog.Int("docs", len(docs)),
			slog.String("error", err.Error()))
		w.stopTimer()
		w.dropRejected(err)
		return w.committed, err
	}

	w.stopTimer()
	w.pending = nil
	w.pendingBytes = 0
	w.committed = stamp
	w.commits++

	w.logger.Debug("writer_commit",
		slog.Uint64("opstamp", uint64(stamp)),
		slog.Int("docs", len(docs)),
		slog.Duration("duration", time.Since(start)))

	for _, fn := range w.listeners {
		fn(stamp)
	}
	return stamp, nil
}

// dropRejected unstages a document the engine refused so the remaining
// documents can still be committed. Other failures keep everything staged.
func (w *Writer) dropRejected(err error) {
	var ie *rserrors.IndexError
	if !errors.As(err, &ie) || ie.Code != rserrors.ErrCodeDocumentRejected {
		return
	}
	id := ie.Details["event_id"]

	kept := w.pending[:0]
	for _, sd := range w.pending {
		if sd.doc.ID == id {
			w.pendingBytes -= sd.size
			continue
		}
		kept = append(kept, sd)
	}
	w.pending = kept
}

// scheduleFlush arms the background commit for the first staged document.
func (w *Writer) scheduleFlush() {
	if w.config.MaxCommitDelay <= 0 || w.config.MinCommitBatchSize <= 1 {
		return
	}
	w.stopTimer()
	w.timer = time.AfterFunc(w.config.MaxCommitDelay, w.flush)
}

func (w *Writer) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// flush is the background commit. A failure is kept for the next call.
func (w *Writer) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || len(w.pending) == 0 {
		return
	}

	if _, err := w.commitLocked(context.Background()); err != nil {
		w.logger.Error("writer_background_commit_failed",
			slog.Int("pending", len(w.pending)),
			slog.String("error", err.Error()))
		w.deferredErr = err
	}
}

func documentSize(doc *schema.MessageDocument) int64 {
	return int64(len(doc.EventID)+len(doc.Body)+len(doc.Sender)) + 8 + docOverheadBytes
}

// Ensure Writer implements Indexer at compile time.
var _ Indexer = (*Writer)(nil)
