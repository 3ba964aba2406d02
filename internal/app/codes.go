package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const defaultCodePrefix = "TKT"

// newTicketCode builds a globally unique admission code. The owner fragments
// make codes traceable to their order and ticket type; the 10 random bytes
// make collisions negligible without a coordination step. A unique index on
// the codes column backstops the construction.
func newTicketCode(prefix, ownerID, ticketTypeID string) string {
	if prefix == "" {
		prefix = defaultCodePrefix
	}

	entropy := make([]byte, 10)
	if _, err := rand.Read(entropy); err != nil {
		// crypto/rand failing means the platform RNG is broken; there is
		// no meaningful fallback for uniqueness.
		panic(fmt.Sprintf("read random: %v", err))
	}

	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(prefix),
		idFragment(ownerID),
		idFragment(ticketTypeID),
		strings.ToUpper(hex.EncodeToString(entropy)),
	)
}

// idFragment keeps codes scannable: enough of the id to trace, not the whole
// UUID.
func idFragment(id string) string {
	clean := strings.ReplaceAll(id, "-", "")
	if len(clean) > 8 {
		clean = clean[:8]
	}
	if clean == "" {
		clean = "00000000"
	}
	return strings.ToUpper(clean)
}
