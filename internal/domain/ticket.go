package domain

import "time"

type TicketStatus string

const (
	TicketStatusAvailable TicketStatus = "available"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// IssuedTicket is one durable, individually-addressable unit of entry.
// Exactly one of OrderID/AssistantID is set for sold vs. invited tickets;
// both may be empty for box-office issuance.
type IssuedTicket struct {
	ID           string
	TicketTypeID string
	// OrderID is empty for invitations and physical issuance.
	OrderID string
	// AssistantID identifies the invited guest, when any.
	AssistantID string
	Code        string
	Status      TicketStatus
	// BundleRef groups the sibling tickets of one bundle lot. Empty for
	// non-bundled types.
	BundleRef string
	CreatedAt time.Time
}
