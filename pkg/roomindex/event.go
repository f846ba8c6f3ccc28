package roomindex

import (
	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/store"
	"github.com/Aman-CERP/roomsearch/pkg/searcher"
)

// OpStamp identifies a completed commit. Later commits have larger stamps.
type OpStamp = store.OpStamp

// Hit is a search result with its relevance score.
type Hit = searcher.Result

// Error categories. Errors returned by a RoomIndex match one of them
// through errors.Is.
var (
	ErrConstruction = rserrors.ErrConstruction
	ErrSchema       = rserrors.ErrSchema
	ErrWrite        = rserrors.ErrWrite
	ErrQuery        = rserrors.ErrQuery
	ErrConsistency  = rserrors.ErrConsistency
)

// Event is a chat event to be indexed.
type Event struct {
	// ID is the event id returned by searches that match the event.
	ID string

	// Body is the message text.
	Body string

	// Sender is the sender's user id.
	Sender string

	// Timestamp is the origin server time in milliseconds since the epoch.
	Timestamp uint64
}

// NewEvent returns an Event.
func NewEvent(id, body, sender string, timestamp uint64) Event {
	return Event{ID: id, Body: body, Sender: sender, Timestamp: timestamp}
}

// Stats describes the state of a RoomIndex.
type Stats struct {
	Path     string
	InMemory bool

	// Documents is the number of documents in the engine, searchable or not.
	Documents uint64

	// Committed is the last commit made durable.
	Committed OpStamp

	// Searchable is the commit searches currently see.
	Searchable OpStamp

	Pending      int
	PendingBytes int64
	Commits      uint64
	Reloads      uint64
	ReloadPolicy searcher.ReloadPolicy
}
