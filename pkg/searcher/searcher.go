package searcher

import (
	"context"
	"fmt"
	"sync"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/query"
	"github.com/Aman-CERP/roomsearch/internal/schema"
	"github.com/Aman-CERP/roomsearch/internal/store"
)

// Searcher runs queries against one snapshot. Results are stable for its
// lifetime regardless of later commits or reloads.
//
// A Searcher may be used from several goroutines. Call Release when done.
type Searcher struct {
	ref    *snapshotRef
	schema *schema.RoomMessageSchema
	parser *query.Parser

	once     sync.Once
	released bool
	mu       sync.RWMutex
}

// OpStamp returns the commit the searcher's snapshot reflects.
func (s *Searcher) OpStamp() store.OpStamp {
	return s.ref.snap.OpStamp()
}

// DocCount returns the number of documents in the snapshot.
func (s *Searcher) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.released {
		return 0, readerClosed()
	}
	return s.ref.snap.DocCount()
}

// Search parses input and returns the event ids of the best matches, at most
// limit of them, by descending score. Equal scores are ordered by document
// id so identical state and query give identical results.
func (s *Searcher) Search(ctx context.Context, input string, limit int) ([]string, error) {
	results, err := s.SearchResults(ctx, input, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// SearchResults is Search with scores.
func (s *Searcher) SearchResults(ctx context.Context, input string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, rserrors.Newf(rserrors.ErrCodeInvalidQuery, "limit must not be negative, got %d", limit)
	}

	q, err := s.parser.Parse(input)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.released {
		return nil, readerClosed()
	}

	hits, err := s.ref.snap.Search(ctx, s.parser.Compile(q), limit)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeSearchFailed, err, "search %q", input)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		ids, err := s.primaryKeys(h.DocID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			results = append(results, Result{ID: id, Score: h.Score})
		}
	}
	return results, nil
}

// primaryKeys reads the stored primary key values of a matched document.
// Anything but text means the index contradicts the schema.
func (s *Searcher) primaryKeys(docID string) ([]string, error) {
	field := s.schema.PrimaryKey()

	values, err := s.ref.snap.StoredValues(docID, field)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeSearchFailed, err, "read %s of document %q", field, docID)
	}
	if len(values) == 0 {
		return nil, rserrors.Consistency(fmt.Sprintf("document %q has no stored %s", docID, field)).
			WithDetail("doc_id", docID)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if v.Kind != store.ValueText {
			return nil, rserrors.Consistency(
				fmt.Sprintf("document %q stores %s as %s %q, want text", docID, field, v.Kind, v.Text)).
				WithDetail("doc_id", docID).
				WithDetail("field", field).
				WithSuggestion("the index was written with an incompatible schema; rebuild it")
		}
		ids = append(ids, v.Text)
	}
	return ids, nil
}

// Release returns the searcher's hold on its snapshot. Safe to call more
// than once; later searches fail.
func (s *Searcher) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		s.ref.release()
	})
}
