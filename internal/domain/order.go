package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the commercial transaction wrapping one or more ticket type
// allocations. Billing details live outside this core.
type Order struct {
	ID         string
	SessionID  string
	BuyerEmail string
	Status     OrderStatus
	CreatedAt  time.Time
}

// OrderLine is one requested allocation inside an order. Quantity counts sale
// units (lots for bundles).
type OrderLine struct {
	TicketTypeID string
	Quantity     int
}
