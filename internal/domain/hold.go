package domain

import "time"

// Hold is an ephemeral reservation of capacity for one buyer session. It
// exists only in the hold ledger, never in durable storage; losing it costs a
// buyer a re-prompt, not correctness.
type Hold struct {
	TicketTypeID string    `json:"ticket_type_id"`
	SessionID    string    `json:"session_id"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Active reports whether the hold still reserves capacity at the given
// instant.
func (h Hold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
