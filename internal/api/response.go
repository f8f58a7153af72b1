package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// errorResponse is the error envelope for all endpoints.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// orderJSON is the order header as rendered in responses.
type orderJSON struct {
	OrderID     int64      `json:"order_id"`
	CustomerID  int64      `json:"customer_id"`
	OrderDate   time.Time  `json:"order_date"`
	HandlerID   int64      `json:"handler_id"`
	OrderStatus string     `json:"order_status"`
	DiscountID  *int64     `json:"discount_id"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// summaryJSON is the list/search projection of an order.
type summaryJSON struct {
	orderJSON
	DiscountType    *string  `json:"discount_type"`
	DiscountAmount  *float64 `json:"discount_amount"`
	TotalOrderPrice float64  `json:"total_order_price"`
}

// lineJSON is one line item as rendered in responses.
type lineJSON struct {
	ServiceID    int64   `json:"service_id"`
	ServiceName  string  `json:"service_name"`
	NumberOfUnit int     `json:"number_of_unit"`
	TotalPrice   float64 `json:"total_price"`
}

// paginationJSON is the pagination block of the listing response.
type paginationJSON struct {
	TotalRecord int64 `json:"total_record"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
}

func toOrderJSON(o order.Order) orderJSON {
	return orderJSON{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		OrderDate:   o.OrderDate,
		HandlerID:   o.HandlerID,
		OrderStatus: string(o.Status),
		DiscountID:  o.DiscountID,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toSummaryJSON(s order.Summary) summaryJSON {
	out := summaryJSON{
		orderJSON:       toOrderJSON(s.Order),
		DiscountType:    s.DiscountType,
		TotalOrderPrice: s.TotalPrice.InexactFloat64(),
	}
	if s.DiscountAmount != nil {
		v := s.DiscountAmount.InexactFloat64()
		out.DiscountAmount = &v
	}
	return out
}

func toSummariesJSON(summaries []order.Summary) []summaryJSON {
	out := make([]summaryJSON, len(summaries))
	for i, s := range summaries {
		out[i] = toSummaryJSON(s)
	}
	return out
}

func toLinesJSON(lines []order.LineItem) []lineJSON {
	out := make([]lineJSON, len(lines))
	for i, l := range lines {
		out[i] = lineJSON{
			ServiceID:    l.ServiceID,
			ServiceName:  l.ServiceName,
			NumberOfUnit: l.Quantity,
			TotalPrice:   l.TotalPrice.InexactFloat64(),
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeInternalError logs the cause server-side and returns a generic
// message to the caller.
func writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg, "")
}
