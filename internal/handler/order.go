package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// PlaceOrder prices the cart and stores a pending order for the caller.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrder
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID: principal(r).UserID,
		Items:  req.Items,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodePlacedOrder(e, res) })
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.Filter{UserID: principal(r).UserID})
}

// GetOrder returns one of the caller's orders. Orders of other users are
// reported as missing unless the caller is an admin.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if p := principal(r); o.UserID != p.UserID && !p.IsAdmin() {
		fail(w, r, order.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// AdminListOrders lists all orders, optionally filtered by ?status= and
// ?userId=.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{UserID: q.Get("userId")}
	if raw := q.Get("status"); raw != "" {
		st, err := order.ParseStatus(raw)
		if err != nil {
			fail(w, r, err)
			return
		}
		f.Status = st
	}
	h.listOrders(w, r, f)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, f order.Filter) {
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// TransitionOrder moves an order along the lifecycle.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.orders.Transition)
}

// ForceOrderStatus sets any known status, bypassing the lifecycle graph.
func (h *Handler) ForceOrderStatus(w http.ResponseWriter, r *http.Request) {
	zctx.From(r.Context()).Warn("Forcing order status", zap.String("order_id", chi.URLParam(r, "id")))
	h.changeStatus(w, r, h.orders.ForceStatus)
}

func (h *Handler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, req order.TransitionRequest) (*order.Order, error),
) {
	var req statusChange
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	st, err := order.ParseStatus(req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := apply(r.Context(), order.TransitionRequest{
		OrderID:              chi.URLParam(r, "id"),
		Status:               st,
		ExpectedDeliveryTime: req.ExpectedDeliveryTime,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// DeleteOrder removes an order.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendNotification delivers a free-form message to a user through the
// configured channels and reports whether any channel reached them.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notification
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.Message == "" {
		fail(w, r, badRequest("userId and message are required"))
		return
	}
	if _, err := h.users.Get(r.Context(), req.UserID); err != nil {
		fail(w, r, err)
		return
	}

	delivered, err := h.notifier.Notify(r.Context(), req.UserID, req.Message)
	if err != nil {
		zctx.From(r.Context()).Warn("Manual notification failed",
			zap.String("target_user_id", req.UserID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, errors.Wrap(err, "notification failed").Error())
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("delivered")
		e.Bool(delivered)
		e.ObjEnd()
	})
}
