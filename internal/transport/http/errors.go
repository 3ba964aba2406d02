package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeSessionRequired      = "session_required"
	codeNameRequired         = "name_required"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidCapacity      = "invalid_capacity"
	codeInvalidBundleSize    = "invalid_bundle_size"
	codeInsufficientCapacity = "insufficient_capacity"
	codeTicketTypeNotFound   = "ticket_type_not_found"
	codeTicketTypeHidden     = "ticket_type_hidden"
	codeOrderNotFound        = "order_not_found"
	codeOrderNotPending      = "order_not_pending"
	codeOrderCancelled       = "order_cancelled"
	codeHoldNotFound         = "hold_not_found"
	codeHoldExpired          = "hold_expired"
	codeLockTimeout          = "lock_timeout"
	codeInvariantViolation   = "invariant_violation"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// lockRetryAfterSeconds is advisory: contention on a ticket type usually
// clears as soon as the competing request commits.
const lockRetryAfterSeconds = 1

// writeDomainError maps service errors onto the HTTP surface. Shortages carry
// the requested and available counts so clients can re-prompt with real
// numbers; lock timeouts are retryable and say so.
func writeDomainError(w http.ResponseWriter, err error) {
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		writeErrorResponse(w, http.StatusConflict, errorResponse{
			Error:     capErr.Error(),
			Code:      codeInsufficientCapacity,
			Requested: capErr.Requested,
			Available: capErr.Available,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrSessionRequired),
		errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidBundleSize):
		writeError(w, http.StatusBadRequest, codeForError(err), err.Error())
	case errors.Is(err, domain.ErrTicketTypeNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, codeForError(err), err.Error())
	case errors.Is(err, domain.ErrHoldExpired):
		writeError(w, http.StatusGone, codeHoldExpired, err.Error())
	case errors.Is(err, domain.ErrTicketTypeHidden),
		errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrOrderCancelled):
		writeError(w, http.StatusConflict, codeForError(err), err.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		w.Header().Set("Retry-After", strconv.Itoa(lockRetryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, codeLockTimeout, err.Error())
	case errors.Is(err, domain.ErrInvariantViolation):
		writeError(w, http.StatusInternalServerError, codeInvariantViolation, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		return codeInvalidID
	case errors.Is(err, domain.ErrInvalidQuantity):
		return codeInvalidQuantity
	case errors.Is(err, domain.ErrSessionRequired):
		return codeSessionRequired
	case errors.Is(err, domain.ErrNameRequired):
		return codeNameRequired
	case errors.Is(err, domain.ErrInvalidCapacity):
		return codeInvalidCapacity
	case errors.Is(err, domain.ErrInvalidBundleSize):
		return codeInvalidBundleSize
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		return codeTicketTypeNotFound
	case errors.Is(err, domain.ErrTicketTypeHidden):
		return codeTicketTypeHidden
	case errors.Is(err, domain.ErrOrderNotFound):
		return codeOrderNotFound
	case errors.Is(err, domain.ErrOrderNotPending):
		return codeOrderNotPending
	case errors.Is(err, domain.ErrOrderCancelled):
		return codeOrderCancelled
	case errors.Is(err, domain.ErrHoldNotFound):
		return codeHoldNotFound
	default:
		return codeInternalError
	}
}
