package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
	"github.com/resguarit/ticketera-rg-sub002/internal/events"
	"github.com/resguarit/ticketera-rg-sub002/internal/ledger"
	"github.com/resguarit/ticketera-rg-sub002/internal/lock"
)

// fakeInventoryRepo backs OrderService and StageService in tests. WithTx
// snapshots state on entry and restores it when the closure fails, mirroring
// the real transactional rollback.
type fakeInventoryRepo struct {
	mu      sync.Mutex
	types   map[string]domain.TicketType
	orders  map[string]domain.Order
	tickets []domain.IssuedTicket

	failCreateTickets bool
	failSetVisibility bool
}

func newFakeInventoryRepo(types ...domain.TicketType) *fakeInventoryRepo {
	byID := make(map[string]domain.TicketType, len(types))
	for _, tt := range types {
		byID[tt.ID] = tt
	}
	return &fakeInventoryRepo{
		types:  byID,
		orders: make(map[string]domain.Order),
	}
}

func (f *fakeInventoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	snapTypes := make(map[string]domain.TicketType, len(f.types))
	for k, v := range f.types {
		snapTypes[k] = v
	}
	snapOrders := make(map[string]domain.Order, len(f.orders))
	for k, v := range f.orders {
		snapOrders[k] = v
	}
	snapTickets := append([]domain.IssuedTicket{}, f.tickets...)
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.types = snapTypes
		f.orders = snapOrders
		f.tickets = snapTickets
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeInventoryRepo) GetTicketTypeForUpdate(_ context.Context, id string) (domain.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.types[id]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (f *fakeInventoryRepo) AddCommitted(_ context.Context, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.types[id]
	if !ok {
		return domain.ErrTicketTypeNotFound
	}
	next := tt.Committed + delta
	if next < 0 || next > tt.Total {
		return domain.ErrInvariantViolation
	}
	tt.Committed = next
	f.types[id] = tt
	return nil
}

func (f *fakeInventoryRepo) CreateOrder(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
	return nil
}

func (f *fakeInventoryRepo) GetOrder(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeInventoryRepo) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	f.orders[id] = order
	return nil
}

func (f *fakeInventoryRepo) CreateTickets(_ context.Context, tickets []domain.IssuedTicket) error {
	if f.failCreateTickets {
		return errors.New("injected ticket insert failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, tickets...)
	return nil
}

func (f *fakeInventoryRepo) TicketsByOrder(_ context.Context, orderID string) ([]domain.IssuedTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.IssuedTicket
	for _, tk := range f.tickets {
		if tk.OrderID == orderID {
			out = append(out, tk)
		}
	}
	return out, nil
}

func (f *fakeInventoryRepo) CancelTicketsByOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tickets {
		if f.tickets[i].OrderID == orderID {
			f.tickets[i].Status = domain.TicketStatusCancelled
		}
	}
	return nil
}

func (f *fakeInventoryRepo) ListStageGroup(_ context.Context, stageGroup string) ([]domain.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketType
	for _, tt := range f.types {
		if tt.StageGroup == stageGroup {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageOrder < out[j].StageOrder })
	return out, nil
}

func (f *fakeInventoryRepo) SetVisibility(_ context.Context, id string, visible bool) error {
	if f.failSetVisibility {
		return errors.New("injected visibility failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.types[id]
	if !ok {
		return domain.ErrTicketTypeNotFound
	}
	tt.Visible = visible
	f.types[id] = tt
	return nil
}

func (f *fakeInventoryRepo) committed(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[id].Committed
}

func (f *fakeInventoryRepo) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

type nopCutover struct{}

func (nopCutover) CheckCutover(context.Context, string) error { return nil }

func newOrderService(repo *fakeInventoryRepo, led ledger.Ledger, clk clock.Clock) *OrderService {
	return NewOrderService(
		repo, led, lock.NewMemory(), nopCutover{}, events.Nop{}, clk,
		zap.NewNop().Sugar(),
	)
}

func TestOrderService_CreateOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("commits tickets and counter in one unit", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 100, Visible: true, BundleSize: 1},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		result, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID:  "sess-1",
			BuyerEmail: "buyer@example.com",
			Lines:      []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		if result.Order.Status != domain.OrderStatusPending {
			t.Fatalf("expected pending order, got %s", result.Order.Status)
		}
		if len(result.Tickets) != 3 {
			t.Fatalf("expected 3 tickets, got %d", len(result.Tickets))
		}
		if got := repo.committed("tt-1"); got != 3 {
			t.Fatalf("expected committed=3, got %d", got)
		}
		for _, tk := range result.Tickets {
			if tk.BundleRef != "" {
				t.Fatalf("expected no bundle ref on plain type, got %q", tk.BundleRef)
			}
			if tk.OrderID != result.Order.ID {
				t.Fatalf("ticket not owned by order: %+v", tk)
			}
		}
	})

	t.Run("bundle purchase expands lots and commits lot count", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-b", Total: 10, Visible: true, IsBundle: true, BundleSize: 4},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		result, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines:     []domain.OrderLine{{TicketTypeID: "tt-b", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		if len(result.Tickets) != 12 {
			t.Fatalf("expected 3x4=12 tickets, got %d", len(result.Tickets))
		}
		refs := make(map[string]int)
		for _, tk := range result.Tickets {
			if tk.BundleRef == "" {
				t.Fatalf("bundled ticket missing bundle ref: %+v", tk)
			}
			refs[tk.BundleRef]++
		}
		if len(refs) != 3 {
			t.Fatalf("expected 3 distinct bundle refs, got %d", len(refs))
		}
		for ref, n := range refs {
			if n != 4 {
				t.Fatalf("expected 4 siblings per lot, ref %s has %d", ref, n)
			}
		}
		if got := repo.committed("tt-b"); got != 3 {
			t.Fatalf("expected committed by lots (3), got %d", got)
		}
	})

	t.Run("respects other sessions' holds", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 5, Visible: true, BundleSize: 1},
		)
		led := ledger.NewMemory()
		_ = led.Put(ctx, domain.Hold{
			TicketTypeID: "tt-1", SessionID: "sess-other", Quantity: 3,
			CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		})
		svc := newOrderService(repo, led, clock.NewFixed(now))

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 3}},
		})
		var capErr *domain.CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("expected CapacityError, got %v", err)
		}
		if capErr.Available != 2 {
			t.Fatalf("expected available=2, got %+v", capErr)
		}
		if repo.ticketCount() != 0 || repo.committed("tt-1") != 0 {
			t.Fatalf("expected no writes on shortage")
		}
	})

	t.Run("own hold does not block own purchase", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 1, Visible: true, BundleSize: 1},
		)
		led := ledger.NewMemory()
		_ = led.Put(ctx, domain.Hold{
			TicketTypeID: "tt-1", SessionID: "sess-1", Quantity: 1,
			CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		})
		svc := newOrderService(repo, led, clock.NewFixed(now))

		if _, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 1}},
		}); err != nil {
			t.Fatalf("expected own hold to cover the purchase, got %v", err)
		}

		// The converted hold is gone from the ledger.
		h, err := led.Get(ctx, "tt-1", "sess-1")
		if err != nil {
			t.Fatalf("ledger get: %v", err)
		}
		if h != nil {
			t.Fatalf("expected hold removed after conversion, got %+v", h)
		}
	})

	t.Run("rolls back fully on mid-transaction failure", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 10, Visible: true, BundleSize: 1},
		)
		repo.failCreateTickets = true
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		_, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 2}},
		})
		if err == nil {
			t.Fatalf("expected injected failure")
		}
		if repo.committed("tt-1") != 0 {
			t.Fatalf("expected counter rollback, committed=%d", repo.committed("tt-1"))
		}
		if repo.ticketCount() != 0 {
			t.Fatalf("expected no partial ticket rows, got %d", repo.ticketCount())
		}
		if len(repo.orders) != 0 {
			t.Fatalf("expected no orphan order row, got %d", len(repo.orders))
		}
	})

	t.Run("ticket codes are unique across a large batch", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 600, Visible: true, BundleSize: 1},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		seen := make(map[string]struct{})
		for i := 0; i < 6; i++ {
			result, err := svc.CreateOrder(ctx, CreateOrderInput{
				SessionID: fmt.Sprintf("sess-%d", i),
				Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 100}},
			})
			if err != nil {
				t.Fatalf("create order %d: %v", i, err)
			}
			for _, tk := range result.Tickets {
				if _, dup := seen[tk.Code]; dup {
					t.Fatalf("duplicate ticket code %s", tk.Code)
				}
				seen[tk.Code] = struct{}{}
			}
		}
		if len(seen) != 600 {
			t.Fatalf("expected 600 distinct codes, got %d", len(seen))
		}
	})

	t.Run("duplicate line items merge into one lock scope", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 10, Visible: true, BundleSize: 1},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		result, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines: []domain.OrderLine{
				{TicketTypeID: "tt-1", Quantity: 2},
				{TicketTypeID: "tt-1", Quantity: 3},
			},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if len(result.Tickets) != 5 || repo.committed("tt-1") != 5 {
			t.Fatalf("expected merged quantity 5, got %d tickets, committed=%d",
				len(result.Tickets), repo.committed("tt-1"))
		}
	})
}

func TestOrderService_CancelOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("conservation round-trip restores committed", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 50, Committed: 10, Visible: true, BundleSize: 1},
			domain.TicketType{ID: "tt-b", Total: 20, Visible: true, IsBundle: true, BundleSize: 3},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		result, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines: []domain.OrderLine{
				{TicketTypeID: "tt-1", Quantity: 4},
				{TicketTypeID: "tt-b", Quantity: 2},
			},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if repo.committed("tt-1") != 14 || repo.committed("tt-b") != 2 {
			t.Fatalf("unexpected committed after create: tt-1=%d tt-b=%d",
				repo.committed("tt-1"), repo.committed("tt-b"))
		}

		if err := svc.CancelOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("cancel order: %v", err)
		}

		if repo.committed("tt-1") != 10 || repo.committed("tt-b") != 0 {
			t.Fatalf("expected committed restored: tt-1=%d tt-b=%d",
				repo.committed("tt-1"), repo.committed("tt-b"))
		}
		order, err := repo.GetOrder(ctx, result.Order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if order.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled order, got %s", order.Status)
		}
		tickets, _ := repo.TicketsByOrder(ctx, result.Order.ID)
		for _, tk := range tickets {
			if tk.Status != domain.TicketStatusCancelled {
				t.Fatalf("expected all tickets cancelled, got %+v", tk)
			}
		}
	})

	t.Run("cancelling twice is rejected", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 10, Visible: true, BundleSize: 1},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		result, err := svc.CreateOrder(ctx, CreateOrderInput{
			SessionID: "sess-1",
			Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if err := svc.CancelOrder(ctx, result.Order.ID); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if err := svc.CancelOrder(ctx, result.Order.ID); !errors.Is(err, domain.ErrOrderCancelled) {
			t.Fatalf("expected ErrOrderCancelled, got %v", err)
		}
		// A double decrement would have tripped the counter guard.
		if repo.committed("tt-1") != 0 {
			t.Fatalf("expected committed=0, got %d", repo.committed("tt-1"))
		}
	})
}

func TestOrderService_MarkPaid(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	repo := newFakeInventoryRepo(
		domain.TicketType{ID: "tt-1", Total: 10, Visible: true, BundleSize: 1},
	)
	svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

	result, err := svc.CreateOrder(ctx, CreateOrderInput{
		SessionID: "sess-1",
		Lines:     []domain.OrderLine{{TicketTypeID: "tt-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.MarkPaid(ctx, result.Order.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := svc.MarkPaid(ctx, result.Order.ID); !errors.Is(err, domain.ErrOrderNotPending) {
		t.Fatalf("expected ErrOrderNotPending on second pay, got %v", err)
	}
}

func TestOrderService_IssueDirect(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("issues invitation tickets with prefix and counter bookkeeping", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			// Hidden on purpose: invitations may target unreleased tiers.
			domain.TicketType{ID: "tt-vip", Total: 10, Visible: false, IsBundle: true, BundleSize: 2},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		tickets, err := svc.IssueDirect(ctx, IssueDirectInput{
			TicketTypeID: "tt-vip",
			AssistantID:  "guest-9",
			Quantity:     2,
			CodePrefix:   "INV",
		})
		if err != nil {
			t.Fatalf("issue direct: %v", err)
		}

		if len(tickets) != 4 {
			t.Fatalf("expected 2x2=4 tickets, got %d", len(tickets))
		}
		for _, tk := range tickets {
			if tk.OrderID != "" {
				t.Fatalf("invitation ticket must not belong to an order: %+v", tk)
			}
			if tk.AssistantID != "guest-9" {
				t.Fatalf("expected assistant owner, got %+v", tk)
			}
			if tk.Code[:4] != "INV-" {
				t.Fatalf("expected INV- code prefix, got %s", tk.Code)
			}
		}
		if repo.committed("tt-vip") != 2 {
			t.Fatalf("expected committed by lots (2), got %d", repo.committed("tt-vip"))
		}
	})

	t.Run("shortage reported with available count", func(t *testing.T) {
		repo := newFakeInventoryRepo(
			domain.TicketType{ID: "tt-1", Total: 3, Committed: 2, Visible: true, BundleSize: 1},
		)
		svc := newOrderService(repo, ledger.NewMemory(), clock.NewFixed(now))

		_, err := svc.IssueDirect(ctx, IssueDirectInput{TicketTypeID: "tt-1", Quantity: 2})
		var capErr *domain.CapacityError
		if !errors.As(err, &capErr) {
			t.Fatalf("expected CapacityError, got %v", err)
		}
		if capErr.Available != 1 {
			t.Fatalf("expected available=1, got %+v", capErr)
		}
	})
}
