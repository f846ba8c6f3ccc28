package indexer

import (
	"context"

	"github.com/Aman-CERP/roomsearch/internal/schema"
	"github.com/Aman-CERP/roomsearch/internal/store"
)

// Indexer defines the write path of a room index.
//
// Implementations must be safe for concurrent use, though a room has a single
// logical writer and ordering between concurrent callers is not defined.
type Indexer interface {
	// AddDocument stages doc for the next commit.
	//
	// Behavior:
	//   - Returns the opstamp of the commit that contains, or will contain, doc
	//   - Commits immediately when the batching thresholds are reached
	//   - A document without an event id is rejected and nothing is staged
	AddDocument(ctx context.Context, doc *schema.MessageDocument) (store.OpStamp, error)

	// Commit commits staged documents if a batching threshold is reached.
	// Otherwise it returns the last committed opstamp.
	Commit(ctx context.Context) (store.OpStamp, error)

	// ForceCommit commits staged documents regardless of thresholds.
	//
	// Behavior:
	//   - All staged documents become durable together, or none do
	//   - On failure the documents stay staged and the opstamp does not move
	//   - With nothing staged it returns the last committed opstamp
	ForceCommit(ctx context.Context) (store.OpStamp, error)

	// LastCommitted returns the opstamp of the most recent successful commit.
	LastCommitted() store.OpStamp

	// Stats returns current writer statistics.
	Stats() WriterStats

	// Close commits anything staged and stops the writer.
	//
	// Behavior:
	//   - Safe to call multiple times (idempotent)
	//   - Does not close the engine, which the caller owns
	Close(ctx context.Context) error
}

// WriterStats holds statistics about a writer.
type WriterStats struct {
	// LastCommitted is the opstamp of the most recent commit.
	LastCommitted store.OpStamp

	// Pending is the number of staged documents.
	Pending int

	// PendingBytes is the estimated size of the staged documents.
	PendingBytes int64

	// Commits counts successful commits by this writer.
	Commits uint64
}
