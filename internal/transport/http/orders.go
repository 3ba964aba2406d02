package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/resguarit/ticketera-rg-sub002/internal/app"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Allocator is the order surface the handlers need.
type Allocator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	MarkPaid(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.IssuedTicket, error)
	IssueDirect(ctx context.Context, in app.IssueDirectInput) ([]domain.IssuedTicket, error)
}

type createOrderRequest struct {
	SessionID  string `json:"session_id"`
	BuyerEmail string `json:"buyer_email"`
	Lines      []struct {
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	} `json:"lines"`
}

type ticketView struct {
	ID           string `json:"id"`
	TicketTypeID string `json:"ticket_type_id"`
	Code         string `json:"code"`
	Status       string `json:"status"`
	BundleRef    string `json:"bundle_ref,omitempty"`
}

type orderResponse struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	Tickets   []ticketView `json:"tickets"`
}

func toOrderResponse(order domain.Order, tickets []domain.IssuedTicket) orderResponse {
	resp := orderResponse{
		ID:        order.ID,
		SessionID: order.SessionID,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		Tickets:   make([]ticketView, 0, len(tickets)),
	}
	for _, tk := range tickets {
		resp.Tickets = append(resp.Tickets, ticketView{
			ID:           tk.ID,
			TicketTypeID: tk.TicketTypeID,
			Code:         tk.Code,
			Status:       string(tk.Status),
			BundleRef:    tk.BundleRef,
		})
	}
	return resp
}

// HandleCreateOrder serves POST /v1/orders.
func HandleCreateOrder(svc Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		lines := make([]domain.OrderLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, domain.OrderLine{
				TicketTypeID: line.TicketTypeID,
				Quantity:     line.Quantity,
			})
		}

		result, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			SessionID:  req.SessionID,
			BuyerEmail: req.BuyerEmail,
			Lines:      lines,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toOrderResponse(result.Order, result.Tickets))
	}
}

// HandleGetOrder serves GET /v1/orders/{id}.
func HandleGetOrder(svc Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, tickets, err := svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toOrderResponse(order, tickets))
	}
}

// HandleCancelOrder serves POST /v1/orders/{id}/cancel.
func HandleCancelOrder(svc Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CancelOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleMarkPaid serves POST /v1/orders/{id}/pay.
func HandleMarkPaid(svc Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.MarkPaid(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type issueDirectRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	AssistantID  string `json:"assistant_id"`
	Quantity     int    `json:"quantity"`
	CodePrefix   string `json:"code_prefix"`
}

type issueDirectResponse struct {
	Tickets []ticketView `json:"tickets"`
}

// HandleIssueDirect serves POST /v1/tickets/issue.
func HandleIssueDirect(svc Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueDirectRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		tickets, err := svc.IssueDirect(r.Context(), app.IssueDirectInput{
			TicketTypeID: req.TicketTypeID,
			AssistantID:  req.AssistantID,
			Quantity:     req.Quantity,
			CodePrefix:   req.CodePrefix,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := issueDirectResponse{Tickets: make([]ticketView, 0, len(tickets))}
		for _, tk := range tickets {
			resp.Tickets = append(resp.Tickets, ticketView{
				ID:           tk.ID,
				TicketTypeID: tk.TicketTypeID,
				Code:         tk.Code,
				Status:       string(tk.Status),
				BundleRef:    tk.BundleRef,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
