// Package api exposes the order service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// Handler serves the order endpoints, delegating business logic to the
// injected order service.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Routes returns the chi router for the order API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/search", h.SearchOrders)
		r.Post("/", h.CreateOrder)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Put("/", h.UpdateOrder)
			r.Delete("/", h.DeleteOrder)
			r.Put("/status", h.UpdateOrderStatus)

			r.Post("/services", h.AddOrderService)
			r.Put("/services/{serviceID}", h.UpdateOrderService)
			r.Delete("/services/{serviceID}", h.RemoveOrderService)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})

	return r
}
