package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/fueltax-backend/api/responses"
	"github.com/angelmondragon/fueltax-backend/internal/quota"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

// SubscriptionStatus reports the account's quota for a fiscal year, the
// current one when fiscalYear is omitted.
func SubscriptionStatus(svc quota.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		accountID, err := accountFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		fiscalYear := strings.TrimSpace(r.URL.Query().Get("fiscalYear"))
		if fiscalYear == "" {
			fiscalYear = fiscal.Current(time.Now().UTC())
		} else if err := fiscal.Validate(fiscalYear); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year"))
			return
		}

		status, err := svc.Status(ctx, accountID, fiscalYear)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
