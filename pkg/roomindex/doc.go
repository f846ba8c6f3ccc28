// Package roomindex provides full-text search over the events of one chat
// room.
//
// A [RoomIndex] is created in one of four ways:
//
//   - [New] creates a durable index at a path that holds none
//   - [NewInRAM] creates an index that disappears when closed
//   - [OpenOrCreate] opens the index at a path or creates it
//   - [Open] opens an existing index and validates its schema
//
// Durable indexes hold an exclusive lock on their directory until closed.
//
// # Visibility
//
// AddEvent and ForceCommit make events durable but never searchable. An
// event shows up in search results once the reader has reloaded past its
// commit, either through Reload or, with the on_commit_with_delay reload
// policy, shortly after the commit:
//
//	idx, err := roomindex.NewInRAM()
//	if err != nil {
//	    return err
//	}
//	defer idx.Close(ctx)
//
//	_, err = idx.AddEvent(ctx, roomindex.NewEvent("$1", "whales!", "@alice", ts))
//	...
//	if err := idx.Reload(ctx); err != nil {
//	    return err
//	}
//	ids, err := idx.Search(ctx, "whales", 10)
//
// # Errors
//
// Errors match one of ErrConstruction, ErrSchema, ErrWrite, ErrQuery
// or ErrConsistency through errors.Is. Nothing is retried internally.
package roomindex
