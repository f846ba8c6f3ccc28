package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
)

// opStampKey is the internal key holding the last committed opstamp.
var opStampKey = []byte("_roomsearch_opstamp")

// BleveEngine implements Engine on Bleve v2.
type BleveEngine struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	lock   *DirLock
	closed bool
}

// Verify interface implementation
var _ Engine = (*BleveEngine)(nil)

// NewMemEngine creates an in-memory engine. Its contents live as long as the
// engine is open.
func NewMemEngine(im mapping.IndexMapping) (*BleveEngine, error) {
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexCreate, err, "create in-memory index")
	}
	return &BleveEngine{index: idx}, nil
}

// CreateEngine creates a new durable index at path. It fails with
// ErrCodeIndexExists if path already holds an index.
func CreateEngine(path string, im mapping.IndexMapping) (*BleveEngine, error) {
	if err := ensureParent(path); err != nil {
		return nil, err
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	if hasIndexMeta(path) {
		_ = lock.Unlock()
		return nil, rserrors.Newf(rserrors.ErrCodeIndexExists, "an index already exists at %s", path).
			WithDetail("path", path).
			WithSuggestion("use open or open-or-create for an existing index")
	}

	idx, err := bleve.New(path, im)
	if err != nil {
		_ = lock.Unlock()
		if errors.Is(err, bleve.ErrorIndexPathExists) {
			return nil, rserrors.Newf(rserrors.ErrCodeIndexExists, "an index already exists at %s", path).
				WithDetail("path", path)
		}
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexCreate, err, "create index at %s", path).
			WithDetail("path", path)
	}

	slog.Info("engine_created", slog.String("path", path))
	return &BleveEngine{index: idx, path: path, lock: lock}, nil
}

// OpenEngine opens an existing durable index at path. It fails with
// ErrCodeIndexNotFound if there is none.
func OpenEngine(path string) (*BleveEngine, error) {
	if !hasIndexMeta(path) {
		return nil, rserrors.Newf(rserrors.ErrCodeIndexNotFound, "no index found at %s", path).
			WithDetail("path", path)
	}

	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	if err := validateIndexIntegrity(path); err != nil {
		_ = lock.Unlock()
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexOpen, err, "index at %s is corrupted", path).
			WithDetail("path", path)
	}

	idx, err := bleve.Open(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexOpen, err, "open index at %s", path).
			WithDetail("path", path)
	}

	slog.Info("engine_opened", slog.String("path", path))
	return &BleveEngine{index: idx, path: path, lock: lock}, nil
}

// OpenOrCreateEngine opens the index at path, creating it with im when the
// path holds none. An empty directory counts as no index.
func OpenOrCreateEngine(path string, im mapping.IndexMapping) (*BleveEngine, error) {
	if hasIndexMeta(path) {
		return OpenEngine(path)
	}
	if err := validateIndexIntegrity(path); err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexOpen, err, "index at %s is corrupted", path).
			WithDetail("path", path)
	}
	return CreateEngine(path, im)
}

// Apply commits docs and the opstamp in one Bleve batch.
func (e *BleveEngine) Apply(ctx context.Context, docs []*Document, stamp OpStamp) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return rserrors.New(rserrors.ErrCodeWriterClosed, "engine is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeCommitFailed, err, "commit opstamp %d", stamp).
			WithDetail("opstamp", strconv.FormatUint(uint64(stamp), 10))
	}

	batch := e.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc.Fields); err != nil {
			return rserrors.Wrapf(rserrors.ErrCodeDocumentRejected, err, "index document %q", doc.ID).
				WithDetail("event_id", doc.ID)
		}
	}
	batch.SetInternal(opStampKey, encodeOpStamp(stamp))

	if err := e.index.Batch(batch); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeCommitFailed, err, "commit opstamp %d", stamp).
			WithDetail("opstamp", strconv.FormatUint(uint64(stamp), 10))
	}

	return nil
}

// LastOpStamp returns the opstamp stored by the most recent commit.
func (e *BleveEngine) LastOpStamp() (OpStamp, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, rserrors.New(rserrors.ErrCodeReaderClosed, "engine is closed", nil)
	}

	raw, err := e.index.GetInternal(opStampKey)
	if err != nil {
		return 0, rserrors.Wrapf(rserrors.ErrCodeIndexOpen, err, "read last opstamp")
	}
	return decodeOpStamp(raw)
}

// Snapshot pins the current committed state.
func (e *BleveEngine) Snapshot() (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, rserrors.New(rserrors.ErrCodeReaderClosed, "engine is closed", nil)
	}

	adv, err := e.index.Advanced()
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "access index internals")
	}
	reader, err := adv.Reader()
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "open index reader")
	}

	raw, err := reader.GetInternal(opStampKey)
	if err != nil {
		_ = reader.Close()
		return nil, rserrors.Wrapf(rserrors.ErrCodeReloadFailed, err, "read snapshot opstamp")
	}
	stamp, err := decodeOpStamp(raw)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	return &bleveSnapshot{
		reader:  reader,
		mapping: e.index.Mapping(),
		stamp:   stamp,
	}, nil
}

// Mapping returns the index mapping.
func (e *BleveEngine) Mapping() mapping.IndexMapping {
	return e.index.Mapping()
}

// Stats returns engine statistics. A closed engine reports only its path.
func (e *BleveEngine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{Path: e.path, InMemory: e.path == ""}
	if e.closed {
		return stats
	}

	stats.DocumentCount, _ = e.index.DocCount()
	if raw, err := e.index.GetInternal(opStampKey); err == nil {
		stats.LastOpStamp, _ = decodeOpStamp(raw)
	}
	return stats
}

// Close closes the index and releases the directory lock.
func (e *BleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	err := e.index.Close()
	if e.lock != nil {
		if unlockErr := e.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	if err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// bleveSnapshot is a refcount-free wrapper over a Bleve index reader; the
// searcher package owns sharing.
type bleveSnapshot struct {
	reader  index.IndexReader
	mapping mapping.IndexMapping
	stamp   OpStamp
}

func (s *bleveSnapshot) OpStamp() OpStamp {
	return s.stamp
}

func (s *bleveSnapshot) DocCount() (uint64, error) {
	return s.reader.DocCount()
}

func (s *bleveSnapshot) Search(ctx context.Context, q query.Query, limit int) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}

	searcher, err := q.Searcher(ctx, s.reader, s.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeSearchFailed, err, "build searcher")
	}
	defer func() { _ = searcher.Close() }()

	order := search.SortOrder{&search.SortScore{Desc: true}, &search.SortDocID{}}
	coll := collector.NewTopNCollector(limit, 0, order)
	if err := coll.Collect(ctx, searcher, s.reader); err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeSearchFailed, err, "collect results")
	}

	matches := coll.Results()
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{DocID: m.ID, Score: m.Score})
	}
	return hits, nil
}

func (s *bleveSnapshot) StoredValues(docID, field string) ([]StoredValue, error) {
	doc, err := s.reader.Document(docID)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeSearchFailed, err, "load document %q", docID)
	}
	if doc == nil {
		return nil, nil
	}

	var values []StoredValue
	doc.VisitFields(func(f index.Field) {
		if f.Name() != field {
			return
		}
		values = append(values, storedValue(f))
	})
	return values, nil
}

func (s *bleveSnapshot) Close() error {
	return s.reader.Close()
}

func storedValue(f index.Field) StoredValue {
	switch v := f.(type) {
	case index.TextField:
		return StoredValue{Field: f.Name(), Kind: ValueText, Text: v.Text()}
	case index.NumericField:
		n, _ := v.Number()
		return StoredValue{Field: f.Name(), Kind: ValueNumeric, Text: strconv.FormatFloat(n, 'g', -1, 64)}
	case index.BooleanField:
		b, _ := v.Boolean()
		return StoredValue{Field: f.Name(), Kind: ValueBoolean, Text: strconv.FormatBool(b)}
	default:
		return StoredValue{Field: f.Name(), Kind: ValueOther}
	}
}

func encodeOpStamp(stamp OpStamp) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(stamp))
	return buf
}

func decodeOpStamp(raw []byte) (OpStamp, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, rserrors.Consistency(fmt.Sprintf("stored opstamp has %d bytes, want 8", len(raw)))
	}
	return OpStamp(binary.BigEndian.Uint64(raw)), nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeIndexCreate, err, "create directory %s", dir)
	}
	return nil
}

func hasIndexMeta(path string) bool {
	info, err := os.Stat(filepath.Join(path, "index_meta.json"))
	return err == nil && !info.IsDir()
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// A missing or empty directory is valid (nothing to open yet); a directory
// with files but no readable index_meta.json is corrupted.
func validateIndexIntegrity(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read index directory: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}
