// Package handler exposes the storefront services as a JSON HTTP API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// SecureCookie marks the access token cookie as HTTPS-only.
	SecureCookie bool
}

// Handler serves the API, delegating business logic to the domain services.
type Handler struct {
	products *product.Service
	orders   *order.Service
	users    *user.Service
	tokens   *auth.Issuer
	notifier order.Notifier

	imageBaseURL string
	secureCookie bool
}

// NewHandler constructs a Handler with the required domain dependencies.
// notifier serves manual admin notifications and should be the same channel
// the order service uses.
func NewHandler(
	cfg Config,
	products *product.Service,
	orders *order.Service,
	users *user.Service,
	tokens *auth.Issuer,
	notifier order.Notifier,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		users:        users,
		tokens:       tokens,
		notifier:     notifier,
		imageBaseURL: cfg.ImageBaseURL,
		secureCookie: cfg.SecureCookie,
	}
}

// Routes returns the API router. Paths are relative to where it is mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/products/{id}/quote", h.QuoteProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/me", h.Me)
		r.Put("/me/telegram", h.LinkTelegram)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(user.RoleAdmin))

			r.Post("/products", h.CreateProduct)
			r.Patch("/products/{id}", h.UpdateProduct)
			r.Post("/products/{id}/discounts", h.AddDiscountTier)
			r.Delete("/products/{id}/discounts/{minQuantity}", h.RemoveDiscountTier)

			r.Get("/orders", h.AdminListOrders)
			r.Post("/orders/{id}/status", h.TransitionOrder)
			r.Post("/orders/{id}/force-status", h.ForceOrderStatus)
			r.Delete("/orders/{id}", h.DeleteOrder)

			r.Post("/notifications", h.SendNotification)
		})
	})
	return r
}
