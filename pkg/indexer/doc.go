// Package indexer provides the write path of a room index.
//
// A [Writer] stages message documents and commits them to a document engine
// in atomic batches. Every commit is tagged with an opstamp, a counter that
// only increases and is stored by the engine so it survives reopening.
//
// # Commit Policy
//
// The [Config] thresholds decide when staged documents are committed:
//
//	MinCommitBatchSize  staged documents that trigger a commit (default 1)
//	MemoryBudgetBytes   staged bytes that force a commit (default 50 MB)
//	MaxCommitDelay      age of the oldest staged document (default 5s)
//
// With the defaults every AddDocument commits. Larger batches trade
// durability latency for throughput; a background timer commits a partial
// batch once MaxCommitDelay has passed, and a failure there is returned by
// the next call. Nothing is retried internally.
//
// # Usage
//
//	w, err := indexer.NewWriter(engine, schema.New(), indexer.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer w.Close(ctx)
//
//	stamp, err := w.AddDocument(ctx, s.MakeDoc(id, body, ts, sender))
//
// # Visibility
//
// Committed documents are durable but not searchable until a reader
// reloads. Use [Writer.OnCommit] to let a reader follow commits.
package indexer
