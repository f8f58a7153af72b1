package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/discount"
	"github.com/xenking/orderdesk/internal/domain/order"
)

type createOrderLine struct {
	ServiceID    int64 `json:"service_id"`
	NumberOfUnit int   `json:"number_of_unit"`
}

type createOrderRequest struct {
	CustomerID int64             `json:"customer_id"`
	HandlerID  int64             `json:"handler_id"`
	DiscountID *int64            `json:"discount_id"`
	Services   []createOrderLine `json:"services"`
}

func (req *createOrderRequest) validate() string {
	if req.CustomerID <= 0 {
		return "customer_id must be a positive integer"
	}
	if req.HandlerID <= 0 {
		return "handler_id must be a positive integer"
	}
	if req.DiscountID != nil && *req.DiscountID <= 0 {
		return "discount_id must be a positive integer if provided"
	}
	if len(req.Services) == 0 {
		return "at least one service must be provided"
	}
	for _, svc := range req.Services {
		if svc.ServiceID <= 0 {
			return "service_id must be a positive integer"
		}
		if svc.NumberOfUnit <= 0 {
			return "number_of_unit must be a positive integer"
		}
	}
	return ""
}

// CreateOrder handles POST /orders. The whole creation sequence runs in one
// transaction; a failure at any step leaves no partial effects.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "Validation failed", msg)
		return
	}

	lines := make([]order.LineRequest, len(req.Services))
	for i, svc := range req.Services {
		lines[i] = order.LineRequest{ServiceID: svc.ServiceID, Quantity: svc.NumberOfUnit}
	}

	res, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID: req.CustomerID,
		HandlerID:  req.HandlerID,
		DiscountID: req.DiscountID,
		Lines:      lines,
	})
	if err != nil {
		h.writeCreateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Order created",
		"order": map[string]any{
			"order_id":          res.Order.ID,
			"customer_id":       res.Order.CustomerID,
			"order_date":        res.Order.OrderDate,
			"handler_id":        res.Order.HandlerID,
			"order_status":      string(res.Order.Status),
			"discount_id":       res.Order.DiscountID,
			"points_spent":      res.PointsSpent,
			"total_order_price": res.TotalPrice.InexactFloat64(),
			"services":          toLinesJSON(res.Lines),
		},
	})
}

// writeCreateError maps creation failures to the error taxonomy: business
// rule rejections and nested lookup failures become 400 with details,
// everything else a generic 500.
func (h *Handler) writeCreateError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		svcErr *catalog.ServiceNotFoundError
		qtyErr *catalog.InvalidQuantityError
	)
	switch {
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrDuplicateService),
		errors.Is(err, discount.ErrInsufficientPoints),
		errors.Is(err, discount.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.As(err, &svcErr),
		errors.As(err, &qtyErr):
		writeError(w, http.StatusBadRequest, "Failed to create order", err.Error())
	default:
		writeInternalError(w, r, "Failed to create order", err)
	}
}

// ListOrders handles GET /orders?page&limit.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := positiveQueryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	limit, err := positiveQueryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	p, err := h.orders.List(r.Context(), page, limit)
	if err != nil {
		writeInternalError(w, r, "Failed to fetch orders", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    toSummariesJSON(p.Orders),
		"pagination": paginationJSON{
			TotalRecord: p.TotalRecord,
			Page:        p.Page,
			Limit:       p.Limit,
		},
	})
}

// SearchOrders handles GET /orders/search?start&end. At least one bound is
// required; a missing start defaults to the epoch and a missing end to now.
// Both bounds are expanded to cover their full day.
func (h *Handler) SearchOrders(w http.ResponseWriter, r *http.Request) {
	startRaw := r.URL.Query().Get("start")
	endRaw := r.URL.Query().Get("end")
	if startRaw == "" && endRaw == "" {
		writeError(w, http.StatusBadRequest, "Start or end date is required", "")
		return
	}

	start, end := time.Unix(0, 0), time.Now()
	var err error
	if startRaw != "" {
		if start, err = parseDate(startRaw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format", err.Error())
			return
		}
	}
	if endRaw != "" {
		if end, err = parseDate(endRaw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format", err.Error())
			return
		}
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "Start date cannot be after end date", "")
		return
	}

	summaries, err := h.orders.SearchByDate(r.Context(), startOfDay(start), endOfDay(end))
	if err != nil {
		writeInternalError(w, r, "Failed to fetch orders", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    toSummariesJSON(summaries),
	})
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	details, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Order not found", "")
			return
		}
		writeInternalError(w, r, "Failed to fetch order", err)
		return
	}

	resp := struct {
		summaryJSON
		Services []lineJSON `json:"services"`
	}{
		summaryJSON: toSummaryJSON(details.Summary),
		Services:    toLinesJSON(details.Lines),
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateStatusRequest struct {
	OrderStatus string `json:"order_status"`
}

// UpdateOrderStatus handles PUT /orders/{id}/status, the status-only fast
// path.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	status, err := order.ParseStatus(req.OrderStatus)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	updated, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeLifecycleError(w, r, "Failed to update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order status updated",
		"order":   toOrderJSON(*updated),
	})
}

type updateOrderRequest struct {
	OrderStatus *string         `json:"order_status"`
	HandlerID   *int64          `json:"handler_id"`
	DiscountID  json.RawMessage `json:"discount_id"` // absent, null, or a number
}

// UpdateOrder handles PUT /orders/{id}: a partial update of status, handler,
// and discount. discount_id may be null to clear the reference.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	var patch order.Patch
	if req.OrderStatus != nil {
		status, err := order.ParseStatus(*req.OrderStatus)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
			return
		}
		patch.Status = &status
	}
	if req.HandlerID != nil {
		if *req.HandlerID <= 0 {
			writeError(w, http.StatusBadRequest, "Validation failed", "handler_id must be a positive integer")
			return
		}
		patch.HandlerID = req.HandlerID
	}
	if len(req.DiscountID) > 0 {
		if string(req.DiscountID) == "null" {
			patch.ClearDiscount = true
		} else {
			var discountID int64
			if err := json.Unmarshal(req.DiscountID, &discountID); err != nil || discountID <= 0 {
				writeError(w, http.StatusBadRequest, "Validation failed", "discount_id must be a positive integer or null")
				return
			}
			patch.DiscountID = &discountID
		}
	}

	updated, err := h.orders.Update(r.Context(), id, patch)
	if err != nil {
		h.writeLifecycleError(w, r, "Failed to update order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order updated",
		"order":   toOrderJSON(*updated),
	})
}

// DeleteOrder handles DELETE /orders/{id}: a soft delete. Repeated deletes
// of the same order return 404.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	if err := h.orders.Delete(r.Context(), id); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Order not found", "")
			return
		}
		writeInternalError(w, r, "Failed to delete order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Order deleted"})
}

type orderServiceRequest struct {
	ServiceID    int64 `json:"service_id"`
	NumberOfUnit int   `json:"number_of_unit"`
}

// AddOrderService handles POST /orders/{id}/services.
func (h *Handler) AddOrderService(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req orderServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.ServiceID <= 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", "service_id must be a positive integer")
		return
	}

	if err := h.orders.AddLine(r.Context(), id, req.ServiceID, req.NumberOfUnit); err != nil {
		h.writeLineError(w, r, "Failed to add service to order", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Service added to order"})
}

// UpdateOrderService handles PUT /orders/{id}/services/{serviceID}.
func (h *Handler) UpdateOrderService(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	serviceID, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", "service id must be a positive integer")
		return
	}

	var req struct {
		NumberOfUnit int `json:"number_of_unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := h.orders.UpdateLine(r.Context(), id, serviceID, req.NumberOfUnit); err != nil {
		h.writeLineError(w, r, "Failed to update service in order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Service quantity updated"})
}

// RemoveOrderService handles DELETE /orders/{id}/services/{serviceID}.
func (h *Handler) RemoveOrderService(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	serviceID, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", "service id must be a positive integer")
		return
	}

	if err := h.orders.RemoveLine(r.Context(), id, serviceID); err != nil {
		h.writeLineError(w, r, "Failed to remove service from order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Service removed from order"})
}

// writeLifecycleError maps status/update failures onto the error taxonomy.
func (h *Handler) writeLifecycleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var transErr *order.InvalidTransitionError
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found", "")
	case errors.Is(err, order.ErrNoFieldsProvided),
		errors.Is(err, order.ErrUnknownStatus),
		errors.As(err, &transErr):
		writeError(w, http.StatusBadRequest, msg, err.Error())
	default:
		writeInternalError(w, r, msg, err)
	}
}

// writeLineError maps line-item CRUD failures onto the error taxonomy.
func (h *Handler) writeLineError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var (
		svcErr *catalog.ServiceNotFoundError
		qtyErr *catalog.InvalidQuantityError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found", "")
	case errors.Is(err, order.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "Service not found on order", "")
	case errors.Is(err, order.ErrDuplicateService),
		errors.As(err, &svcErr),
		errors.As(err, &qtyErr):
		writeError(w, http.StatusBadRequest, msg, err.Error())
	default:
		writeInternalError(w, r, msg, err)
	}
}

// orderID parses the {id} route parameter, writing a 400 response when it is
// not a positive integer.
func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

// positiveQueryInt parses an optional positive integer query parameter.
func positiveQueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// parseDate accepts a plain date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
