package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"fulfillment/internal/core"
)

type errorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code"`
	RequestID      string   `json:"request_id,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
	MissingItemIDs []string `json:"missing_item_ids,omitempty"`
	Result         any      `json:"result,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, status, errorResponse{Error: message, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	resp.RequestID = requestIDFromContext(r.Context())
	writeJSON(w, status, resp)
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps fulfillment errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var incomplete *core.OrderIncompleteError
	switch {
	case errors.As(err, &incomplete):
		writeErrorResponse(w, r, http.StatusConflict, errorResponse{
			Error:          err.Error(),
			Code:           "ORDER_INCOMPLETE",
			MissingItemIDs: incomplete.MissingItemIDs,
		})
	case core.Retryable(err):
		writeErrorResponse(w, r, http.StatusServiceUnavailable, errorResponse{
			Error:     err.Error(),
			Code:      "LEDGER_WRITE_FAILED",
			Retryable: true,
		})
	case errors.Is(err, core.ErrOrderNotFound):
		writeError(w, r, err.Error(), "ORDER_NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrShipmentNotFound):
		writeError(w, r, err.Error(), "SHIPMENT_NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrOrderAlreadyShipped):
		writeError(w, r, err.Error(), "ORDER_SHIPPED", http.StatusConflict)
	case errors.Is(err, core.ErrUnitNotEligible):
		writeError(w, r, err.Error(), "UNIT_NOT_ELIGIBLE", http.StatusConflict)
	case errors.Is(err, core.ErrInvalidOrder):
		writeError(w, r, err.Error(), "INVALID_ORDER", http.StatusBadRequest)
	case errors.Is(err, core.ErrDuplicateBarcode):
		writeError(w, r, err.Error(), "DUPLICATE_BARCODE", http.StatusConflict)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
