package events

import (
	"context"
	"time"
)

// Event types published by the inventory core. Consumers (email dispatch,
// reporting, storefront cache invalidation) live outside this repo.
const (
	TypeOrderCreated        = "order.created"
	TypeOrderCancelled      = "order.cancelled"
	TypeTicketTypeSoldOut   = "ticket_type.sold_out"
	TypeTicketTypeActivated = "ticket_type.activated"
)

type Event struct {
	Type         string    `json:"type"`
	TicketTypeID string    `json:"ticket_type_id,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	StageGroup   string    `json:"stage_group,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits inventory lifecycle events. Publishing is fire-and-forget
// from the core's perspective: failures are logged by the caller and never
// roll back the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
