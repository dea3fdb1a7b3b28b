package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fueltax-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

// AccountParam is the chi URL parameter naming the account in scope.
const AccountParam = "accountId"

// AccountAccess resolves {accountId} and requires the caller's token to list
// it. Accounts outside the token answer 404 so their existence is not leaked.
func AccountAccess(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := ClaimsFromContext(ctx)
			if claims == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			accountID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, AccountParam)))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
				return
			}
			if !claims.HasAccount(accountID) {
				if logg != nil {
					logg.Warn(logg.WithAccountID(ctx, accountID.String()), "account access denied")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "account not found"))
				return
			}

			ctx = WithAccountID(ctx, accountID.String())
			if logg != nil {
				ctx = logg.WithAccountID(ctx, accountID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
