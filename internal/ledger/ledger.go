package ledger

import (
	"context"
	"time"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Ledger stores in-flight holds. Entries are ephemeral: the durable stores
// never depend on them, and losing the ledger costs buyers a re-prompt at
// worst.
//
// A session has at most one hold per ticket type; Put replaces any prior
// entry for the same (ticket type, session) pair. Implementations sweep
// expired entries lazily on read and removal paths; correctness never relies
// on a background sweeper.
type Ledger interface {
	// Put creates or replaces the session's hold for its ticket type.
	Put(ctx context.Context, h domain.Hold) error

	// Get returns the session's hold for the ticket type, or nil when none
	// exists. Expired entries are still returned so callers can tell
	// "expired" apart from "never held"; callers check Active themselves.
	Get(ctx context.Context, ticketTypeID, sessionID string) (*domain.Hold, error)

	// ActiveForType returns all non-expired holds for a ticket type,
	// discarding expired entries as it goes.
	ActiveForType(ctx context.Context, ticketTypeID string, now time.Time) ([]domain.Hold, error)

	// Remove deletes the session's hold for one ticket type. Removing a
	// missing hold is a no-op.
	Remove(ctx context.Context, ticketTypeID, sessionID string) error

	// RemoveSession deletes the session's holds for the given ticket types,
	// or all of them when none are named.
	RemoveSession(ctx context.Context, sessionID string, ticketTypeIDs ...string) error

	// RemoveSessionPrefix deletes every hold whose session id starts with
	// the given base session id, covering checkouts restarted under derived
	// session ids.
	RemoveSessionPrefix(ctx context.Context, baseSessionID string) error

	// Sweep discards expired entries across the whole ledger. Housekeeping
	// only; all read paths already ignore expired entries.
	Sweep(ctx context.Context, now time.Time) error
}
