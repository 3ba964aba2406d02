package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/resguarit/ticketera-rg-sub002/internal/app"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

type fakeAllocator struct {
	createResult app.CreateOrderResult
	createErr    error
	cancelErr    error
	payErr       error
	order        domain.Order
	tickets      []domain.IssuedTicket
	getErr       error
	issued       []domain.IssuedTicket
	issueErr     error

	cancelledID string
	paidID      string
}

func (f *fakeAllocator) CreateOrder(_ context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error) {
	return f.createResult, f.createErr
}

func (f *fakeAllocator) CancelOrder(_ context.Context, orderID string) error {
	f.cancelledID = orderID
	return f.cancelErr
}

func (f *fakeAllocator) MarkPaid(_ context.Context, orderID string) error {
	f.paidID = orderID
	return f.payErr
}

func (f *fakeAllocator) GetOrder(_ context.Context, orderID string) (domain.Order, []domain.IssuedTicket, error) {
	return f.order, f.tickets, f.getErr
}

func (f *fakeAllocator) IssueDirect(_ context.Context, in app.IssueDirectInput) ([]domain.IssuedTicket, error) {
	return f.issued, f.issueErr
}

func TestHandleCreateOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("created order comes back 201 with tickets", func(t *testing.T) {
		svc := &fakeAllocator{
			createResult: app.CreateOrderResult{
				Order: domain.Order{ID: "ord-1", SessionID: "sess-1", Status: domain.OrderStatusPending, CreatedAt: now},
				Tickets: []domain.IssuedTicket{
					{ID: "tk-1", TicketTypeID: "tt-1", OrderID: "ord-1", Code: "TKT-X", Status: domain.TicketStatusAvailable},
				},
			},
		}

		body := `{"session_id":"sess-1","lines":[{"ticket_type_id":"tt-1","quantity":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()
		HandleCreateOrder(svc)(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp orderResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.ID != "ord-1" || len(resp.Tickets) != 1 || resp.Tickets[0].Code != "TKT-X" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("capacity shortage is 409 with counts", func(t *testing.T) {
		svc := &fakeAllocator{
			createErr: &domain.CapacityError{TicketTypeID: "tt-1", Requested: 5, Available: 2},
		}
		body := `{"session_id":"sess-1","lines":[{"ticket_type_id":"tt-1","quantity":5}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()
		HandleCreateOrder(svc)(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		var resp errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != codeInsufficientCapacity || resp.Requested != 5 || resp.Available != 2 {
			t.Fatalf("unexpected error response: %+v", resp)
		}
	})

	t.Run("hidden ticket type is 409", func(t *testing.T) {
		svc := &fakeAllocator{createErr: domain.ErrTicketTypeHidden}
		body := `{"session_id":"sess-1","lines":[{"ticket_type_id":"tt-1","quantity":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()
		HandleCreateOrder(svc)(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestHandleOrderLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("get, pay and cancel route by id", func(t *testing.T) {
		svc := &fakeAllocator{
			order: domain.Order{ID: "ord-1", SessionID: "sess-1", Status: domain.OrderStatusPaid},
		}
		router := NewRouter(RouterConfig{Orders: svc})

		req := httptest.NewRequest(http.MethodGet, "/v1/orders/ord-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("get: expected 200, got %d", rec.Code)
		}

		req = httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/pay", nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent || svc.paidID != "ord-1" {
			t.Fatalf("pay: expected 204 for ord-1, got %d %q", rec.Code, svc.paidID)
		}

		req = httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/cancel", nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent || svc.cancelledID != "ord-1" {
			t.Fatalf("cancel: expected 204 for ord-1, got %d %q", rec.Code, svc.cancelledID)
		}
	})

	t.Run("missing order is 404", func(t *testing.T) {
		svc := &fakeAllocator{getErr: domain.ErrOrderNotFound}
		router := NewRouter(RouterConfig{Orders: svc})

		req := httptest.NewRequest(http.MethodGet, "/v1/orders/nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("double cancel is 409", func(t *testing.T) {
		svc := &fakeAllocator{cancelErr: domain.ErrOrderCancelled}
		router := NewRouter(RouterConfig{Orders: svc})

		req := httptest.NewRequest(http.MethodPost, "/v1/orders/ord-1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestHandleIssueDirect(t *testing.T) {
	t.Parallel()

	svc := &fakeAllocator{
		issued: []domain.IssuedTicket{
			{ID: "tk-1", TicketTypeID: "tt-vip", Code: "INV-A", Status: domain.TicketStatusAvailable, BundleRef: "ref-1"},
			{ID: "tk-2", TicketTypeID: "tt-vip", Code: "INV-B", Status: domain.TicketStatusAvailable, BundleRef: "ref-1"},
		},
	}

	body := `{"ticket_type_id":"tt-vip","assistant_id":"guest-9","quantity":1,"code_prefix":"INV"}`
	req := httptest.NewRequest(http.MethodPost, "/tickets/issue", strings.NewReader(body))
	rec := httptest.NewRecorder()
	HandleIssueDirect(svc)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp issueDirectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tickets) != 2 || resp.Tickets[0].BundleRef != "ref-1" {
		t.Fatalf("unexpected tickets: %+v", resp.Tickets)
	}
}
