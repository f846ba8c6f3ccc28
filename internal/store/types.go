// Package store provides the document engine behind a room index: durable or
// in-memory Bleve storage, atomic commits tagged with opstamps, point-in-time
// snapshots for search, and the directory lock guarding durable indexes.
package store

import (
	"context"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// OpStamp identifies a completed commit. Stamps only increase; the first
// commit of a fresh index is 1 and an index with no commits reports 0.
type OpStamp uint64

// Document is one engine document: its identifier and field values.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// Hit is one ranked search match.
type Hit struct {
	DocID string
	Score float64
}

// ValueKind classifies a stored field value.
type ValueKind string

const (
	ValueText    ValueKind = "text"
	ValueNumeric ValueKind = "numeric"
	ValueBoolean ValueKind = "boolean"
	ValueOther   ValueKind = "other"
)

// StoredValue is a stored field value read back from a snapshot.
type StoredValue struct {
	Field string
	Kind  ValueKind
	Text  string
}

// Engine is the document engine contract a room index builds on.
//
// Apply is the only mutation. It is all-or-nothing: either every document
// and the new opstamp become durable together, or nothing changes.
// Snapshots never observe a partially applied commit.
type Engine interface {
	// Apply commits docs atomically and records stamp as the last opstamp.
	Apply(ctx context.Context, docs []*Document, stamp OpStamp) error

	// LastOpStamp returns the opstamp of the most recent commit.
	LastOpStamp() (OpStamp, error)

	// Snapshot returns a point-in-time view of the committed state.
	// The caller must Close it.
	Snapshot() (Snapshot, error)

	// Mapping returns the index mapping the engine was created or opened with.
	Mapping() mapping.IndexMapping

	// Stats reports engine statistics.
	Stats() Stats

	// Close releases the engine. Safe to call more than once.
	Close() error
}

// Snapshot is an immutable view of the index as of one commit.
type Snapshot interface {
	// OpStamp is the commit this snapshot reflects.
	OpStamp() OpStamp

	// DocCount returns the number of documents visible in the snapshot.
	DocCount() (uint64, error)

	// Search runs q and returns at most limit hits ordered by descending
	// score, ties broken by ascending document id.
	Search(ctx context.Context, q query.Query, limit int) ([]Hit, error)

	// StoredValues returns the stored values of field for a document.
	// A document that does not exist yields no values.
	StoredValues(docID, field string) ([]StoredValue, error)

	// Close releases the snapshot.
	Close() error
}

// Stats holds engine statistics.
type Stats struct {
	Path          string
	InMemory      bool
	DocumentCount uint64
	LastOpStamp   OpStamp
}
