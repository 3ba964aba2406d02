package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/resguarit/ticketera-rg-sub002/internal/app"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Reserver is the reservation surface the handlers need.
type Reserver interface {
	PlaceHolds(ctx context.Context, sessionID string, requests []app.HoldRequest) (app.PlaceHoldsResult, error)
	ReleaseHolds(ctx context.Context, sessionID string, ticketTypeIDs ...string) error
	ReleaseBySessionPrefix(ctx context.Context, baseSessionID string) error
	VerifyHolds(ctx context.Context, sessionID string, requests []app.HoldRequest) (app.VerifyResult, error)
	GetAvailability(ctx context.Context, ticketTypeID string) (domain.Availability, error)
}

type placeHoldsRequest struct {
	SessionID string `json:"session_id"`
	Items     []struct {
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	} `json:"items"`
}

type holdView struct {
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type holdFailureView struct {
	TicketTypeID string `json:"ticket_type_id"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
}

type placeHoldsResponse struct {
	Granted  []holdView        `json:"granted"`
	Failures []holdFailureView `json:"failures"`
}

// HandlePlaceHolds serves POST /v1/holds. Per-item shortages come back 200
// with failure details; only input and infrastructure problems are errors.
func HandlePlaceHolds(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeHoldsRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		requests := make([]app.HoldRequest, 0, len(req.Items))
		for _, item := range req.Items {
			requests = append(requests, app.HoldRequest{
				TicketTypeID: item.TicketTypeID,
				Quantity:     item.Quantity,
			})
		}

		result, err := svc.PlaceHolds(r.Context(), req.SessionID, requests)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := placeHoldsResponse{
			Granted:  make([]holdView, 0, len(result.Granted)),
			Failures: make([]holdFailureView, 0, len(result.Failures)),
		}
		for _, h := range result.Granted {
			resp.Granted = append(resp.Granted, holdView{
				TicketTypeID: h.TicketTypeID,
				Quantity:     h.Quantity,
				ExpiresAt:    h.ExpiresAt,
			})
		}
		for _, f := range result.Failures {
			resp.Failures = append(resp.Failures, holdFailureView{
				TicketTypeID: f.TicketTypeID,
				Requested:    f.Requested,
				Available:    f.Available,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type releaseHoldsRequest struct {
	SessionID     string   `json:"session_id"`
	TicketTypeIDs []string `json:"ticket_type_ids"`
	Prefix        bool     `json:"prefix"`
}

// HandleReleaseHolds serves POST /v1/holds/release. With prefix set the
// session id is treated as a base and every derived session is cleared.
func HandleReleaseHolds(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req releaseHoldsRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var err error
		if req.Prefix {
			err = svc.ReleaseBySessionPrefix(r.Context(), req.SessionID)
		} else {
			err = svc.ReleaseHolds(r.Context(), req.SessionID, req.TicketTypeIDs...)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type verifyHoldsRequest struct {
	SessionID string `json:"session_id"`
	Items     []struct {
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	} `json:"items"`
}

type invalidHoldView struct {
	TicketTypeID string `json:"ticket_type_id"`
	Reason       string `json:"reason"`
}

type verifyHoldsResponse struct {
	Valid   []holdView        `json:"valid"`
	Invalid []invalidHoldView `json:"invalid"`
}

// HandleVerifyHolds serves POST /v1/holds/verify.
func HandleVerifyHolds(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyHoldsRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		requests := make([]app.HoldRequest, 0, len(req.Items))
		for _, item := range req.Items {
			requests = append(requests, app.HoldRequest{
				TicketTypeID: item.TicketTypeID,
				Quantity:     item.Quantity,
			})
		}

		result, err := svc.VerifyHolds(r.Context(), req.SessionID, requests)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := verifyHoldsResponse{
			Valid:   make([]holdView, 0, len(result.Valid)),
			Invalid: make([]invalidHoldView, 0, len(result.Invalid)),
		}
		for _, h := range result.Valid {
			resp.Valid = append(resp.Valid, holdView{
				TicketTypeID: h.TicketTypeID,
				Quantity:     h.Quantity,
				ExpiresAt:    h.ExpiresAt,
			})
		}
		for _, inv := range result.Invalid {
			reason := codeHoldNotFound
			switch {
			case errors.Is(inv.Reason, domain.ErrHoldExpired):
				reason = codeHoldExpired
			case errors.Is(inv.Reason, domain.ErrInsufficientCapacity):
				reason = codeInsufficientCapacity
			}
			resp.Invalid = append(resp.Invalid, invalidHoldView{
				TicketTypeID: inv.TicketTypeID,
				Reason:       reason,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type availabilityResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	Total        int    `json:"total"`
	Committed    int    `json:"committed"`
	Held         int    `json:"held"`
	Available    int    `json:"available"`
}

// HandleGetAvailability serves GET /v1/ticket-types/{id}/availability.
func HandleGetAvailability(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avail, err := svc.GetAvailability(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(availabilityResponse{
			TicketTypeID: avail.TicketTypeID,
			Total:        avail.Total,
			Committed:    avail.Committed,
			Held:         avail.Held,
			Available:    avail.Available,
		})
	}
}
