// Package searcher provides the read path of a room index.
//
// A [Reader] owns the snapshot that searches run against. Snapshots are
// immutable: documents committed after a snapshot was taken stay invisible
// to it, so a reader only sees new commits after it reloads.
//
// # Reload Policies
//
//   - [ReloadManual]: the snapshot moves only when [Reader.Reload] is called
//   - [ReloadOnCommitWithDelay]: [Reader.NotifyCommit] schedules a
//     background reload after ReloadDelay
//
// Reload blocks until the snapshot covers every commit made before the
// call. Concurrent reloads share one snapshot swap.
//
// # Searchers
//
// [Reader.Searcher] hands out a [Searcher] pinned to the current snapshot.
// The snapshot stays open, even across reloads and Reader.Close, until
// every searcher holding it has been released:
//
//	s, err := reader.Searcher()
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
//
//	ids, err := s.Search(ctx, "whales OR dolphins", 10)
//
// Results are ordered by descending score with ties broken by document id,
// so identical state and query always give identical results. A primary
// key stored as anything but text fails the search with a consistency
// error instead of being skipped.
package searcher
