package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

const maxBodySize = 1 << 20

// requestError is a client mistake detected before reaching a service.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

var errForbidden = errors.New("forbidden")

type decoder interface {
	Decode(d *jx.Decoder) error
}

// readJSON decodes the request body into v.
func readJSON(w http.ResponseWriter, r *http.Request, v decoder) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %s", err)
	}
	if len(body) == 0 {
		return badRequest("request body is empty")
	}
	if err := v.Decode(jx.DecodeBytes(body)); err != nil {
		return badRequest("malformed request body: %s", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// errorStatus maps domain errors to HTTP status codes. Zero means the error
// is unexpected.
func errorStatus(err error) int {
	var (
		reqErr      *requestError
		notFoundErr *order.ProductNotFoundError
		quantityErr *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrDeliveryTimeNotAllowed),
		errors.Is(err, user.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, order.ErrUserRequired):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrConcurrentUpdate),
		errors.Is(err, product.ErrConcurrentUpdate),
		errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict
	case errors.As(err, &notFoundErr),
		errors.As(err, &quantityErr),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, product.ErrInvalidProduct),
		errors.Is(err, discount.ErrInvalidDiscountTier):
		return http.StatusUnprocessableEntity
	default:
		return 0
	}
}

// fail writes err as an API error. Unexpected errors are logged and hidden
// behind a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := errorStatus(err); status != 0 {
		writeError(w, status, err.Error())
		return
	}
	zctx.From(r.Context()).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
