package domain

import "time"

// TicketType is a sellable capacity pool: a fixed number of admissions at one
// price point. Bundled types deliver BundleSize physical tickets per sale unit
// (a "lot"); Committed always counts lots, never physical tickets.
type TicketType struct {
	ID         string
	Name       string
	PriceCents int64
	Total      int
	Committed  int
	IsBundle   bool
	BundleSize int
	Visible    bool
	// StageGroup links successive pricing tiers of the same product; empty
	// for unstaged types. StageOrder positions the tier inside its group.
	StageGroup string
	StageOrder int
	CreatedAt  time.Time
}

// UnitsPerLot is the number of physical tickets one sale unit expands into.
func (t TicketType) UnitsPerLot() int {
	if t.IsBundle && t.BundleSize > 1 {
		return t.BundleSize
	}
	return 1
}

// Remaining is capacity not yet consumed by committed sales. Holds are not
// subtracted here; they live in the ledger and are accounted separately.
func (t TicketType) Remaining() int {
	return t.Total - t.Committed
}

// Availability is a point-in-time capacity snapshot for one ticket type.
// Held excludes expired ledger entries.
type Availability struct {
	TicketTypeID string
	Total        int
	Committed    int
	Held         int
	Available    int
}
