package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
	"github.com/resguarit/ticketera-rg-sub002/internal/events"
	"github.com/resguarit/ticketera-rg-sub002/internal/ledger"
	"github.com/resguarit/ticketera-rg-sub002/internal/lock"
	"github.com/resguarit/ticketera-rg-sub002/internal/metrics"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error)
	// AddCommitted adjusts the committed counter by delta (lots, never
	// physical tickets) and fails with ErrInvariantViolation when the result
	// would leave the 0..total range.
	AddCommitted(ctx context.Context, ticketTypeID string, delta int) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
	CreateTickets(ctx context.Context, tickets []domain.IssuedTicket) error
	TicketsByOrder(ctx context.Context, orderID string) ([]domain.IssuedTicket, error)
	CancelTicketsByOrder(ctx context.Context, orderID string) error
}

// CutoverChecker reacts to a ticket type possibly reaching zero remaining
// capacity. Failures are cosmetic (a visibility flip) and never undo a sale.
type CutoverChecker interface {
	CheckCutover(ctx context.Context, ticketTypeID string) error
}

// OrderService converts confirmed purchases into durable tickets, reverses
// them on cancellation, and issues tickets outside the order flow. It owns
// every mutation of the committed counters.
type OrderService struct {
	repo   OrderRepository
	ledger ledger.Ledger
	locks  lock.Keyed
	stages CutoverChecker
	pub    events.Publisher
	clock  clock.Clock
	log    *zap.SugaredLogger
}

func NewOrderService(repo OrderRepository, led ledger.Ledger, locks lock.Keyed, stages CutoverChecker, pub events.Publisher, clk clock.Clock, log *zap.SugaredLogger) *OrderService {
	return &OrderService{
		repo:   repo,
		ledger: led,
		locks:  locks,
		stages: stages,
		pub:    pub,
		clock:  clk,
		log:    log,
	}
}

type CreateOrderInput struct {
	SessionID  string
	BuyerEmail string
	Lines      []domain.OrderLine
}

type CreateOrderResult struct {
	Order   domain.Order
	Tickets []domain.IssuedTicket
}

// CreateOrder allocates every line item inside one transaction: either the
// full ticket set and every counter increment land, or none do. Line-item
// locks are taken in ascending ticket-type-id order so two orders touching
// the same types cannot deadlock.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.SessionID == "" {
		return CreateOrderResult{}, domain.ErrSessionRequired
	}
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return CreateOrderResult{}, err
	}

	releaseAll, err := s.acquireLines(ctx, lines)
	if err != nil {
		return CreateOrderResult{}, err
	}
	defer releaseAll()

	now := s.clock.Now()
	order := domain.Order{
		ID:         uuid.NewString(),
		SessionID:  in.SessionID,
		BuyerEmail: in.BuyerEmail,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
	}

	var tickets []domain.IssuedTicket
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			return err
		}

		for _, line := range lines {
			tt, err := s.repo.GetTicketTypeForUpdate(txCtx, line.TicketTypeID)
			if err != nil {
				return err
			}
			if !tt.Visible {
				return domain.ErrTicketTypeHidden
			}

			heldByOthers, err := s.heldByOthers(ctx, tt.ID, in.SessionID, now)
			if err != nil {
				return err
			}
			available := tt.Total - tt.Committed - heldByOthers
			if line.Quantity > available {
				return &domain.CapacityError{
					TicketTypeID: tt.ID,
					Requested:    line.Quantity,
					Available:    available,
				}
			}

			tickets = append(tickets, s.expandLots(tt, line.Quantity, order.ID, "", "")...)

			// Committed counts lots: one per sale unit, matching how
			// availability is decremented everywhere else.
			if err := s.repo.AddCommitted(txCtx, tt.ID, line.Quantity); err != nil {
				return err
			}
		}

		return s.repo.CreateTickets(txCtx, tickets)
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	metrics.OrdersCreated.Inc()
	metrics.TicketsIssued.Add(float64(len(tickets)))

	// The sale is durable from here on; the aftermath below must not undo
	// it.
	if err := s.ledger.RemoveSession(ctx, in.SessionID, typeIDs(lines)...); err != nil {
		s.log.Warnw("release holds after order", "order_id", order.ID, "error", err)
	}
	for _, line := range lines {
		if err := s.stages.CheckCutover(ctx, line.TicketTypeID); err != nil {
			s.log.Warnw("stage cutover check", "ticket_type_id", line.TicketTypeID, "error", err)
		}
	}
	s.publish(ctx, events.Event{Type: events.TypeOrderCreated, OrderID: order.ID, OccurredAt: now})

	return CreateOrderResult{Order: order, Tickets: tickets}, nil
}

// CancelOrder is the exact inverse of CreateOrder: tickets flip to cancelled
// and each committed counter loses the same lot count it gained. For bundled
// types the lot count is recovered from distinct bundle references.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.ErrInvalidID
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.ErrOrderCancelled
	}

	tickets, err := s.repo.TicketsByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	lines := make([]domain.OrderLine, 0, 4)
	for typeID, lots := range lotsByType(tickets) {
		lines = append(lines, domain.OrderLine{TicketTypeID: typeID, Quantity: lots})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].TicketTypeID < lines[j].TicketTypeID })

	releaseAll, err := s.acquireLines(ctx, lines)
	if err != nil {
		return err
	}
	defer releaseAll()

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}
		if err := s.repo.CancelTicketsByOrder(txCtx, orderID); err != nil {
			return err
		}
		for _, line := range lines {
			if err := s.repo.AddCommitted(txCtx, line.TicketTypeID, -line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.OrdersCancelled.Inc()
	s.publish(ctx, events.Event{Type: events.TypeOrderCancelled, OrderID: orderID, OccurredAt: s.clock.Now()})
	return nil
}

// MarkPaid records the payment collaborator's success signal on a pending
// order.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPending
		}
		return s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusPaid)
	})
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.IssuedTicket, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	tickets, err := s.repo.TicketsByOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, tickets, nil
}

type IssueDirectInput struct {
	TicketTypeID string
	AssistantID  string
	Quantity     int
	CodePrefix   string
}

// IssueDirect issues tickets outside the order flow (invitations, box
// office) with the same bundle expansion and committed bookkeeping, but no
// payment and no owning order. Visibility is not checked: organizers may
// invite guests to a hidden tier.
func (s *OrderService) IssueDirect(ctx context.Context, in IssueDirectInput) ([]domain.IssuedTicket, error) {
	if in.TicketTypeID == "" {
		return nil, domain.ErrInvalidID
	}
	if in.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	release, err := s.acquire(ctx, in.TicketTypeID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	var tickets []domain.IssuedTicket
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, in.TicketTypeID)
		if err != nil {
			return err
		}

		heldByOthers, err := s.heldByOthers(ctx, tt.ID, "", now)
		if err != nil {
			return err
		}
		available := tt.Total - tt.Committed - heldByOthers
		if in.Quantity > available {
			return &domain.CapacityError{
				TicketTypeID: tt.ID,
				Requested:    in.Quantity,
				Available:    available,
			}
		}

		tickets = s.expandLots(tt, in.Quantity, "", in.AssistantID, in.CodePrefix)
		if err := s.repo.CreateTickets(txCtx, tickets); err != nil {
			return err
		}
		return s.repo.AddCommitted(txCtx, tt.ID, in.Quantity)
	})
	if err != nil {
		return nil, err
	}

	metrics.TicketsIssued.Add(float64(len(tickets)))
	if err := s.stages.CheckCutover(ctx, in.TicketTypeID); err != nil {
		s.log.Warnw("stage cutover check", "ticket_type_id", in.TicketTypeID, "error", err)
	}
	return tickets, nil
}

// expandLots materializes the physical tickets for a number of sale units.
// Every lot of a bundled type shares one fresh bundle reference; non-bundled
// types get none.
func (s *OrderService) expandLots(tt domain.TicketType, lots int, orderID, assistantID, codePrefix string) []domain.IssuedTicket {
	now := s.clock.Now()
	unitsPerLot := tt.UnitsPerLot()
	codeOwner := orderID
	if codeOwner == "" {
		codeOwner = assistantID
	}

	tickets := make([]domain.IssuedTicket, 0, lots*unitsPerLot)
	for lot := 0; lot < lots; lot++ {
		bundleRef := ""
		if tt.IsBundle {
			bundleRef = uuid.NewString()
		}
		for unit := 0; unit < unitsPerLot; unit++ {
			tickets = append(tickets, domain.IssuedTicket{
				ID:           uuid.NewString(),
				TicketTypeID: tt.ID,
				OrderID:      orderID,
				AssistantID:  assistantID,
				Code:         newTicketCode(codePrefix, codeOwner, tt.ID),
				Status:       domain.TicketStatusAvailable,
				BundleRef:    bundleRef,
				CreatedAt:    now,
			})
		}
	}
	return tickets
}

// heldByOthers sums active holds not owned by sessionID. An empty sessionID
// counts every active hold.
func (s *OrderService) heldByOthers(ctx context.Context, ticketTypeID, sessionID string, now time.Time) (int, error) {
	active, err := s.ledger.ActiveForType(ctx, ticketTypeID, now)
	if err != nil {
		return 0, fmt.Errorf("list active holds: %w", err)
	}
	total := 0
	for _, h := range active {
		if sessionID != "" && h.SessionID == sessionID {
			continue
		}
		total += h.Quantity
	}
	return total, nil
}

func (s *OrderService) acquireLines(ctx context.Context, lines []domain.OrderLine) (func(), error) {
	acquired := make([]func(), 0, len(lines))
	releaseAll := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i]()
		}
	}
	for _, line := range lines {
		release, err := s.acquire(ctx, line.TicketTypeID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		acquired = append(acquired, release)
	}
	return releaseAll, nil
}

func (s *OrderService) acquire(ctx context.Context, ticketTypeID string) (func(), error) {
	release, err := s.locks.Acquire(ctx, ticketTypeID)
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			metrics.LockTimeouts.Inc()
		}
		return nil, err
	}
	return release, nil
}

func (s *OrderService) publish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warnw("publish event", "type", e.Type, "error", err)
	}
}

// mergeLines folds duplicate ticket types together so each lock key is
// acquired once, and orders the result by ticket type id for deadlock-free
// lock acquisition.
func mergeLines(lines []domain.OrderLine) ([]domain.OrderLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	byType := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.TicketTypeID == "" {
			return nil, domain.ErrInvalidID
		}
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		byType[line.TicketTypeID] += line.Quantity
	}

	merged := make([]domain.OrderLine, 0, len(byType))
	for typeID, qty := range byType {
		merged = append(merged, domain.OrderLine{TicketTypeID: typeID, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].TicketTypeID < merged[j].TicketTypeID })
	return merged, nil
}

// lotsByType recovers the lot count each ticket type was committed with:
// distinct bundle references for bundled tickets, plain row count otherwise.
func lotsByType(tickets []domain.IssuedTicket) map[string]int {
	refs := make(map[string]map[string]struct{})
	lots := make(map[string]int)
	for _, tk := range tickets {
		if tk.BundleRef == "" {
			lots[tk.TicketTypeID]++
			continue
		}
		if refs[tk.TicketTypeID] == nil {
			refs[tk.TicketTypeID] = make(map[string]struct{})
		}
		refs[tk.TicketTypeID][tk.BundleRef] = struct{}{}
	}
	for typeID, set := range refs {
		lots[typeID] += len(set)
	}
	return lots
}

func typeIDs(lines []domain.OrderLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.TicketTypeID)
	}
	return ids
}
