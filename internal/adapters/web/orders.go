package web

import (
	"net/http"
	"strings"
	"time"

	"fulfillment/internal/app"
	"fulfillment/internal/core"
)

// scanStatus maps a scan outcome to its HTTP status and error code. Accepted and
// already-scanned are successes; the rest are rejections with a code.
func scanStatus(outcome core.Outcome) (int, string) {
	switch outcome {
	case core.OutcomeAccepted:
		return http.StatusCreated, ""
	case core.OutcomeAlreadyScanned:
		return http.StatusOK, ""
	case core.OutcomeQuantityExceeded:
		return http.StatusConflict, "QUANTITY_EXCEEDED"
	case core.OutcomeNoMatch:
		return http.StatusNotFound, "NO_MATCH"
	case core.OutcomeUnitNotEligible:
		return http.StatusUnprocessableEntity, "UNIT_NOT_ELIGIBLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// apiSubmitScan handles POST /api/orders/{id}/scans.
func (h *Handler) apiSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Barcode) == "" {
		writeError(w, r, "barcode is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SubmitScan(r.Context(), app.SubmitScanRequest{
		OrderID:    orderID(r),
		Barcode:    req.Barcode,
		OperatorID: h.operatorID(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status, code := scanStatus(res.Result.Outcome)
	if code != "" {
		writeErrorResponse(w, r, status, errorResponse{
			Error:  res.Result.Reason,
			Code:   code,
			Result: res.Result,
		})
		return
	}
	writeJSON(w, status, res.Result)
}

// apiListScans handles GET /api/orders/{id}/scans.
func (h *Handler) apiListScans(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListScans(r.Context(), orderID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order_id": result.OrderID, "scans": result.Records})
}

// apiProgress handles GET /api/orders/{id}/progress.
func (h *Handler) apiProgress(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetProgress(r.Context(), orderID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Progress)
}

// apiFinalize handles POST /api/orders/{id}/finalize.
func (h *Handler) apiFinalize(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.FinalizeShipment(r.Context(), orderID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Shipment)
}

// apiGetShipment handles GET /api/orders/{id}/shipment.
func (h *Handler) apiGetShipment(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetShipment(r.Context(), orderID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Shipment)
}

// apiGetOrder handles GET /api/orders/{id}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetOrder(r.Context(), orderID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderJSON(result.Order))
}

// apiCreateOrder handles POST /api/orders.
func (h *Handler) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req app.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderJSON(result.Order))
}

// apiRegisterUnit handles POST /api/units.
func (h *Handler) apiRegisterUnit(w http.ResponseWriter, r *http.Request) {
	var req app.RegisterUnitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Barcode) == "" {
		writeError(w, r, "barcode is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.RegisterUnit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	u := result.Unit
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        u.ID,
		"barcode":   u.Barcode,
		"kind":      u.Kind,
		"category":  u.Category,
		"inspected": u.Inspected,
		"remaining": u.Remaining.String(),
	})
}

type orderItemJSON struct {
	ID           string `json:"id"`
	Position     int    `json:"position"`
	TypeTag      string `json:"type_tag"`
	ProductLabel string `json:"product_label,omitempty"`
	Quantity     int    `json:"quantity"`
	Width        string `json:"width"`
	Length       string `json:"length"`
	Weight       string `json:"weight"`
}

type orderResponse struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	CustomerRef string          `json:"customer_ref,omitempty"`
	Note        string          `json:"note,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ShippedAt   *time.Time      `json:"shipped_at,omitempty"`
	Items       []orderItemJSON `json:"items"`
}

func orderJSON(o *core.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		CustomerRef: o.CustomerRef,
		Note:        o.Note,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		ShippedAt:   o.ShippedAt,
		Items:       make([]orderItemJSON, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemJSON{
			ID:           it.ID,
			Position:     it.Position,
			TypeTag:      it.TypeTag,
			ProductLabel: it.ProductLabel,
			Quantity:     it.Quantity,
			Width:        it.Width.String(),
			Length:       it.Length.String(),
			Weight:       it.Weight.String(),
		})
	}
	return resp
}
