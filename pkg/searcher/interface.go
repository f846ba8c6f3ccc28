package searcher

import (
	"errors"
	"time"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/store"
)

// ErrNilEngine is returned when attempting to create a Reader without an engine.
var ErrNilEngine = errors.New("document engine is required")

// Result represents a single search result.
type Result struct {
	// ID is the event id stored in the matched document.
	ID string

	// Score is the engine's relevance score. Higher is more relevant.
	Score float64
}

// ReloadPolicy decides when a Reader picks up new commits.
type ReloadPolicy string

const (
	// ReloadManual only reloads when Reload is called.
	ReloadManual ReloadPolicy = "manual"

	// ReloadOnCommitWithDelay reloads in the background a short delay
	// after a commit is reported through NotifyCommit.
	ReloadOnCommitWithDelay ReloadPolicy = "on_commit_with_delay"
)

// DefaultReloadDelay is the delay used by ReloadOnCommitWithDelay.
const DefaultReloadDelay = 500 * time.Millisecond

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// Policy is the reload policy (default: manual).
	Policy ReloadPolicy

	// ReloadDelay is how long after a commit the background reload runs
	// under ReloadOnCommitWithDelay (default: 500ms).
	ReloadDelay time.Duration
}

// DefaultReaderConfig returns the default reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Policy:      ReloadManual,
		ReloadDelay: DefaultReloadDelay,
	}
}

// Validate checks the configuration.
func (c ReaderConfig) Validate() error {
	switch c.Policy {
	case ReloadManual, ReloadOnCommitWithDelay:
	default:
		return rserrors.Newf(rserrors.ErrCodeConfigInvalid, "unknown reload policy %q", c.Policy).
			WithSuggestion("use manual or on_commit_with_delay")
	}
	if c.ReloadDelay < 0 {
		return rserrors.Newf(rserrors.ErrCodeConfigInvalid, "reload delay must not be negative, got %s", c.ReloadDelay)
	}
	return nil
}

// ReaderStats holds statistics about a reader.
type ReaderStats struct {
	// OpStamp is the commit the current snapshot reflects.
	OpStamp store.OpStamp

	// Reloads counts snapshot swaps.
	Reloads uint64

	// Policy is the configured reload policy.
	Policy ReloadPolicy
}
