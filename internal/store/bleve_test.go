package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/schema"
)

func testMapping(t *testing.T) *mapping.IndexMappingImpl {
	t.Helper()
	im, err := schema.New().IndexMapping()
	require.NoError(t, err)
	return im
}

func messageDoc(id, body string) *Document {
	return &Document{ID: id, Fields: schema.New().MakeDoc(id, body, 1_700_000_000_000, "@alice").Fields()}
}

func bodyQuery(text string) query.Query {
	q := bleve.NewMatchQuery(text)
	q.SetField(schema.FieldBody)
	return q
}

func TestMemEngine_ApplyIsInvisibleToOlderSnapshot(t *testing.T) {
	// Given: an in-memory engine with a snapshot taken before any commit
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	before, err := eng.Snapshot()
	require.NoError(t, err)
	defer func() { _ = before.Close() }()

	// When: committing a document
	ctx := context.Background()
	require.NoError(t, eng.Apply(ctx, []*Document{messageDoc("$1", "whales next week")}, 1))

	// Then: the old snapshot still sees nothing
	assert.Equal(t, OpStamp(0), before.OpStamp())
	hits, err := before.Search(ctx, bodyQuery("week"), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// And: a fresh snapshot sees the commit
	after, err := eng.Snapshot()
	require.NoError(t, err)
	defer func() { _ = after.Close() }()

	assert.Equal(t, OpStamp(1), after.OpStamp())
	hits, err = after.Search(ctx, bodyQuery("week"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "$1", hits[0].DocID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestMemEngine_StoredValuesReturnsPrimaryKey(t *testing.T) {
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	require.NoError(t, eng.Apply(context.Background(), []*Document{messageDoc("$event:example.org", "hello")}, 1))

	snap, err := eng.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	values, err := snap.StoredValues("$event:example.org", schema.FieldEventID)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, ValueText, values[0].Kind)
	assert.Equal(t, "$event:example.org", values[0].Text)

	// body is indexed but not stored
	values, err = snap.StoredValues("$event:example.org", schema.FieldBody)
	require.NoError(t, err)
	assert.Empty(t, values)

	// unknown documents yield nothing
	values, err = snap.StoredValues("$missing", schema.FieldEventID)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestMemEngine_SearchLimitAndOrder(t *testing.T) {
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	docs := []*Document{
		messageDoc("$c", "tea"),
		messageDoc("$a", "tea"),
		messageDoc("$b", "tea"),
	}
	require.NoError(t, eng.Apply(context.Background(), docs, 1))

	snap, err := eng.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	// limit 0 is empty, not an error
	hits, err := snap.Search(context.Background(), bodyQuery("tea"), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// equal scores fall back to document id order
	hits, err = snap.Search(context.Background(), bodyQuery("tea"), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "$a", hits[0].DocID)
	assert.Equal(t, "$b", hits[1].DocID)
}

func TestMemEngine_ApplyRejectsEmptyID(t *testing.T) {
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	err = eng.Apply(context.Background(), []*Document{{ID: "", Fields: map[string]interface{}{"body": "x"}}}, 1)

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeDocumentRejected, rserrors.GetCode(err))

	// nothing was committed
	stamp, err := eng.LastOpStamp()
	require.NoError(t, err)
	assert.Equal(t, OpStamp(0), stamp)
}

func TestMemEngine_ApplyWithCancelledContextCommitsNothing(t *testing.T) {
	// Given: an engine and a cancelled context
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: applying a batch
	err = eng.Apply(ctx, []*Document{messageDoc("$1", "whales")}, 1)

	// Then: the commit fails and the opstamp does not move
	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeCommitFailed, rserrors.GetCode(err))
	assert.ErrorIs(t, err, context.Canceled)

	stamp, err := eng.LastOpStamp()
	require.NoError(t, err)
	assert.Equal(t, OpStamp(0), stamp)
}

func TestEngine_ClosedOperationsFail(t *testing.T) {
	eng, err := NewMemEngine(testMapping(t))
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	assert.Error(t, eng.Apply(context.Background(), nil, 1))
	_, err = eng.Snapshot()
	assert.Error(t, err)
	_, err = eng.LastOpStamp()
	assert.Error(t, err)
	assert.True(t, eng.Stats().InMemory)
}

func TestDurableEngine_OpStampSurvivesReopen(t *testing.T) {
	// Given: a durable index with two commits
	path := filepath.Join(t.TempDir(), "room")
	eng, err := CreateEngine(path, testMapping(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, eng.Apply(ctx, []*Document{messageDoc("$1", "first")}, 1))
	require.NoError(t, eng.Apply(ctx, []*Document{messageDoc("$2", "second")}, 2))
	require.NoError(t, eng.Close())

	// When: reopening it
	reopened, err := OpenEngine(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the opstamp and documents are still there
	stamp, err := reopened.LastOpStamp()
	require.NoError(t, err)
	assert.Equal(t, OpStamp(2), stamp)

	stats := reopened.Stats()
	assert.Equal(t, uint64(2), stats.DocumentCount)
	assert.Equal(t, OpStamp(2), stats.LastOpStamp)
	assert.False(t, stats.InMemory)
}

func TestCreateEngine_FailsOnExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room")
	eng, err := CreateEngine(path, testMapping(t))
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	_, err = CreateEngine(path, testMapping(t))

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeIndexExists, rserrors.GetCode(err))
	assert.True(t, errors.Is(err, rserrors.ErrConstruction))
}

func TestOpenEngine_FailsWhenMissing(t *testing.T) {
	_, err := OpenEngine(filepath.Join(t.TempDir(), "nope"))

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeIndexNotFound, rserrors.GetCode(err))
}

func TestOpenEngine_SecondHandleIsLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room")
	eng, err := OpenOrCreateEngine(path, testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	_, err = OpenEngine(path)

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeIndexLocked, rserrors.GetCode(err))
}

func TestOpenOrCreateEngine_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room")

	first, err := OpenOrCreateEngine(path, testMapping(t))
	require.NoError(t, err)
	require.NoError(t, first.Apply(context.Background(), []*Document{messageDoc("$1", "hello")}, 1))
	require.NoError(t, first.Close())

	second, err := OpenOrCreateEngine(path, testMapping(t))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	assert.Equal(t, uint64(1), second.Stats().DocumentCount)
}

func TestOpenOrCreateEngine_EmptyDirectoryIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room")
	require.NoError(t, os.MkdirAll(path, 0o755))

	eng, err := OpenOrCreateEngine(path, testMapping(t))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	assert.FileExists(t, filepath.Join(path, "index_meta.json"))
}

func TestOpenOrCreateEngine_CorruptDirectoryFails(t *testing.T) {
	// Given: a directory with files but no index metadata
	path := filepath.Join(t.TempDir(), "room")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "stray"), []byte("x"), 0o644))

	// When: opening or creating
	_, err := OpenOrCreateEngine(path, testMapping(t))

	// Then: the directory is reported instead of being overwritten
	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeIndexOpen, rserrors.GetCode(err))
	assert.FileExists(t, filepath.Join(path, "stray"))
}

func TestValidateIndexIntegrity(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, validateIndexIntegrity(filepath.Join(dir, "missing")))
	assert.NoError(t, validateIndexIntegrity(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), nil, 0o644))
	assert.Error(t, validateIndexIntegrity(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), []byte("{bad"), 0o644))
	assert.Error(t, validateIndexIntegrity(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), []byte(`{"storage":"scorch"}`), 0o644))
	assert.NoError(t, validateIndexIntegrity(dir))
}

func TestDecodeOpStamp(t *testing.T) {
	stamp, err := decodeOpStamp(nil)
	require.NoError(t, err)
	assert.Equal(t, OpStamp(0), stamp)

	stamp, err = decodeOpStamp(encodeOpStamp(42))
	require.NoError(t, err)
	assert.Equal(t, OpStamp(42), stamp)

	_, err = decodeOpStamp([]byte{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rserrors.ErrConsistency))
}
