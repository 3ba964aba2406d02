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

// Admin is the organizer surface: ticket type CRUD plus the manual stage
// override.
type Admin interface {
	CreateTicketType(ctx context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context) ([]domain.TicketType, error)
}

type StageActivator interface {
	ForceActivate(ctx context.Context, ticketTypeID string) error
}

type createTicketTypeRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Total      int    `json:"total"`
	IsBundle   bool   `json:"is_bundle"`
	BundleSize int    `json:"bundle_size"`
	Visible    bool   `json:"visible"`
	StageGroup string `json:"stage_group"`
	StageOrder int    `json:"stage_order"`
}

type ticketTypeResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Total      int       `json:"total"`
	Committed  int       `json:"committed"`
	IsBundle   bool      `json:"is_bundle"`
	BundleSize int       `json:"bundle_size"`
	Visible    bool      `json:"visible"`
	StageGroup string    `json:"stage_group,omitempty"`
	StageOrder int       `json:"stage_order,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTicketTypeResponse(tt domain.TicketType) ticketTypeResponse {
	return ticketTypeResponse{
		ID:         tt.ID,
		Name:       tt.Name,
		PriceCents: tt.PriceCents,
		Total:      tt.Total,
		Committed:  tt.Committed,
		IsBundle:   tt.IsBundle,
		BundleSize: tt.BundleSize,
		Visible:    tt.Visible,
		StageGroup: tt.StageGroup,
		StageOrder: tt.StageOrder,
		CreatedAt:  tt.CreatedAt,
	}
}

// HandleCreateTicketType serves POST /v1/admin/ticket-types.
func HandleCreateTicketType(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTicketTypeRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		tt, err := svc.CreateTicketType(r.Context(), app.CreateTicketTypeInput{
			Name:       req.Name,
			PriceCents: req.PriceCents,
			Total:      req.Total,
			IsBundle:   req.IsBundle,
			BundleSize: req.BundleSize,
			Visible:    req.Visible,
			StageGroup: req.StageGroup,
			StageOrder: req.StageOrder,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toTicketTypeResponse(tt))
	}
}

// HandleListTicketTypes serves GET /v1/admin/ticket-types.
func HandleListTicketTypes(svc Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListTicketTypes(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]ticketTypeResponse, 0, len(types))
		for _, tt := range types {
			resp = append(resp, toTicketTypeResponse(tt))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleForceActivate serves POST /v1/admin/ticket-types/{id}/activate.
func HandleForceActivate(svc StageActivator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ForceActivate(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
