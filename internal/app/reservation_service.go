package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
	"github.com/resguarit/ticketera-rg-sub002/internal/ledger"
	"github.com/resguarit/ticketera-rg-sub002/internal/lock"
	"github.com/resguarit/ticketera-rg-sub002/internal/metrics"
)

// CapacityReader provides the durable capacity figures holds are checked
// against. Holds themselves never touch the durable store.
type CapacityReader interface {
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
}

// ReservationService places, releases and verifies TTL holds against ticket
// type capacity. All capacity math for one ticket type runs under that type's
// key in the lock, so two sessions racing for the last unit cannot both win.
type ReservationService struct {
	store   CapacityReader
	ledger  ledger.Ledger
	locks   lock.Keyed
	clock   clock.Clock
	holdTTL time.Duration
}

const defaultHoldTTL = 10 * time.Minute

func NewReservationService(store CapacityReader, led ledger.Ledger, locks lock.Keyed, clk clock.Clock, opts ...ReservationOption) *ReservationService {
	svc := &ReservationService{
		store:   store,
		ledger:  led,
		locks:   locks,
		clock:   clk,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationOption func(*ReservationService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

type HoldRequest struct {
	TicketTypeID string
	Quantity     int
}

// HoldFailure reports a shortage for one line item together with the capacity
// actually available when the decision was made.
type HoldFailure struct {
	TicketTypeID string
	Requested    int
	Available    int
}

type PlaceHoldsResult struct {
	Granted  []domain.Hold
	Failures []HoldFailure
}

// AllGranted reports whether every requested line item got its hold.
func (r PlaceHoldsResult) AllGranted() bool {
	return len(r.Failures) == 0
}

// PlaceHolds evaluates each line item independently and accumulates failures
// instead of stopping at the first shortage, so the caller can re-prompt with
// accurate numbers. Shortage is a reported outcome; lock timeouts and store
// failures abort the whole call as errors.
func (s *ReservationService) PlaceHolds(ctx context.Context, sessionID string, requests []HoldRequest) (PlaceHoldsResult, error) {
	if sessionID == "" {
		return PlaceHoldsResult{}, domain.ErrSessionRequired
	}
	for _, req := range requests {
		if req.TicketTypeID == "" {
			return PlaceHoldsResult{}, domain.ErrInvalidID
		}
		if req.Quantity <= 0 {
			return PlaceHoldsResult{}, domain.ErrInvalidQuantity
		}
	}

	var result PlaceHoldsResult
	for _, req := range requests {
		granted, failure, err := s.placeOne(ctx, sessionID, req)
		if err != nil {
			return PlaceHoldsResult{}, err
		}
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
			continue
		}
		result.Granted = append(result.Granted, *granted)
	}
	return result, nil
}

func (s *ReservationService) placeOne(ctx context.Context, sessionID string, req HoldRequest) (*domain.Hold, *HoldFailure, error) {
	release, err := s.locks.Acquire(ctx, req.TicketTypeID)
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			metrics.LockTimeouts.Inc()
		}
		return nil, nil, err
	}
	defer release()

	tt, err := s.store.GetTicketType(ctx, req.TicketTypeID)
	if err != nil {
		return nil, nil, err
	}
	if !tt.Visible {
		return nil, nil, domain.ErrTicketTypeHidden
	}

	now := s.clock.Now()
	heldByOthers, err := s.sumHeldByOthers(ctx, req.TicketTypeID, sessionID, now)
	if err != nil {
		return nil, nil, err
	}

	// The session's own hold is about to be replaced, so it does not count
	// against it.
	available := tt.Total - tt.Committed - heldByOthers
	if req.Quantity > available {
		metrics.HoldsRejected.Inc()
		return nil, &HoldFailure{
			TicketTypeID: req.TicketTypeID,
			Requested:    req.Quantity,
			Available:    available,
		}, nil
	}

	hold := domain.Hold{
		TicketTypeID: req.TicketTypeID,
		SessionID:    sessionID,
		Quantity:     req.Quantity,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.holdTTL),
	}
	if err := s.ledger.Put(ctx, hold); err != nil {
		return nil, nil, fmt.Errorf("store hold: %w", err)
	}

	metrics.HoldsGranted.Inc()
	return &hold, nil, nil
}

// ReleaseHolds removes the session's holds for the named ticket types, or all
// of them when none are named. Releasing a non-existent hold is a no-op.
func (s *ReservationService) ReleaseHolds(ctx context.Context, sessionID string, ticketTypeIDs ...string) error {
	if sessionID == "" {
		return domain.ErrSessionRequired
	}
	return s.ledger.RemoveSession(ctx, sessionID, ticketTypeIDs...)
}

// ReleaseBySessionPrefix removes every hold whose session id derives from the
// given base session, covering checkouts restarted under a new derived id.
func (s *ReservationService) ReleaseBySessionPrefix(ctx context.Context, baseSessionID string) error {
	if baseSessionID == "" {
		return domain.ErrSessionRequired
	}
	return s.ledger.RemoveSessionPrefix(ctx, baseSessionID)
}

// InvalidHold explains why a verified hold no longer counts.
type InvalidHold struct {
	TicketTypeID string
	Reason       error
}

type VerifyResult struct {
	Valid   []domain.Hold
	Invalid []InvalidHold
}

// VerifyHolds re-checks that the session still holds each requested line, used
// immediately before payment capture so buyers are not charged for inventory
// that slipped away. A hold is valid only if it exists, is unexpired, and
// covers at least the requested quantity.
func (s *ReservationService) VerifyHolds(ctx context.Context, sessionID string, requests []HoldRequest) (VerifyResult, error) {
	if sessionID == "" {
		return VerifyResult{}, domain.ErrSessionRequired
	}
	for _, req := range requests {
		if req.TicketTypeID == "" {
			return VerifyResult{}, domain.ErrInvalidID
		}
		if req.Quantity <= 0 {
			return VerifyResult{}, domain.ErrInvalidQuantity
		}
	}

	now := s.clock.Now()
	var result VerifyResult
	for _, req := range requests {
		h, err := s.ledger.Get(ctx, req.TicketTypeID, sessionID)
		if err != nil {
			return VerifyResult{}, err
		}
		if h == nil {
			result.Invalid = append(result.Invalid, InvalidHold{TicketTypeID: req.TicketTypeID, Reason: domain.ErrHoldNotFound})
			continue
		}
		if !h.Active(now) {
			_ = s.ledger.Remove(ctx, req.TicketTypeID, sessionID)
			result.Invalid = append(result.Invalid, InvalidHold{TicketTypeID: req.TicketTypeID, Reason: domain.ErrHoldExpired})
			continue
		}
		if h.Quantity < req.Quantity {
			result.Invalid = append(result.Invalid, InvalidHold{
				TicketTypeID: req.TicketTypeID,
				Reason: &domain.CapacityError{
					TicketTypeID: req.TicketTypeID,
					Requested:    req.Quantity,
					Available:    h.Quantity,
				},
			})
			continue
		}
		result.Valid = append(result.Valid, *h)
	}
	return result, nil
}

// GetAvailability returns a read-only capacity snapshot. Held excludes
// expired ledger entries, which the read sweeps as a side effect.
func (s *ReservationService) GetAvailability(ctx context.Context, ticketTypeID string) (domain.Availability, error) {
	tt, err := s.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return domain.Availability{}, err
	}

	now := s.clock.Now()
	active, err := s.ledger.ActiveForType(ctx, ticketTypeID, now)
	if err != nil {
		return domain.Availability{}, err
	}
	held := 0
	for _, h := range active {
		held += h.Quantity
	}

	return domain.Availability{
		TicketTypeID: ticketTypeID,
		Total:        tt.Total,
		Committed:    tt.Committed,
		Held:         held,
		Available:    tt.Total - tt.Committed - held,
	}, nil
}

func (s *ReservationService) sumHeldByOthers(ctx context.Context, ticketTypeID, sessionID string, now time.Time) (int, error) {
	active, err := s.ledger.ActiveForType(ctx, ticketTypeID, now)
	if err != nil {
		return 0, fmt.Errorf("list active holds: %w", err)
	}
	total := 0
	for _, h := range active {
		if h.SessionID == sessionID {
			continue
		}
		total += h.Quantity
	}
	return total, nil
}
