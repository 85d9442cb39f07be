package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/user"
)

// Register creates a customer account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.users.Register(r.Context(), user.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeUser(e, u) })
}

// Login checks credentials, sets the access token cookie and returns the
// token for clients that prefer the Authorization header.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	token, expires, err := h.tokens.Issue(u)
	if err != nil {
		fail(w, r, errors.Wrap(err, "issue token"))
		return
	}

	http.SetCookie(w, h.tokenCookie(token, expires))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("token")
		e.Str(token)
		e.FieldStart("expiresAt")
		encodeTime(e, expires)
		e.FieldStart("user")
		encodeUser(e, u)
		e.ObjEnd()
	})
}

// Logout clears the access token cookie.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	c := h.tokenCookie("", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tokenCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

// LinkTelegram stores the Telegram chat that receives the caller's order
// notifications. A null or empty chatId unlinks it.
func (h *Handler) LinkTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramLink
	if err := readJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.users.LinkTelegram(r.Context(), principal(r).UserID, req.ChatID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}
