package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/user"
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   user.Role
}

// IsAdmin reports whether the caller has the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == user.RoleAdmin
}

type principalKey struct{}

// PrincipalFromContext returns the caller stored by the authentication
// middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

// authenticate accepts an access token from the cookie or the Authorization
// header and rejects the request with 401 when it is missing or invalid.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := h.tokens.Parse(token)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected access token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, Principal{
			UserID: claims.UserID,
			Role:   claims.Role,
		})
		ctx = zctx.With(ctx, zap.String("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal(r).Role != role {
				writeError(w, http.StatusForbidden, errForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
