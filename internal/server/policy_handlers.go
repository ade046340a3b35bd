package server

import (
	"net/http"
	"time"

	"github.com/avigne/Rates-And-Roles/internal/routing"
	rolegrantservices "github.com/avigne/Rates-And-Roles/modules/rolegrant/services"
	"github.com/avigne/Rates-And-Roles/pkg/authz"
)

func handlePolicyRowsAPI(w http.ResponseWriter, r *http.Request, projector rolegrantservices.PolicyProjector, nowUTC func() time.Time) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	asOf, ok := asOfOrToday(r, nowUTC)
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return
	}

	rows, err := projector.PolicyRows(r.Context(), tenant.ID, asOf)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "policy projection failed")
		return
	}
	if rows == nil {
		rows = make([][]string, 0)
	}
	writeServerJSON(w, map[string]any{
		"as_of":  asOf,
		"tenant": tenant.ID,
		"policy": rows,
	})
}

func handlePolicySyncAPI(w http.ResponseWriter, r *http.Request, projector rolegrantservices.PolicyProjector, authorizer *authz.Authorizer, nowUTC func() time.Time) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	asOf, ok := asOfOrToday(r, nowUTC)
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return
	}

	if err := projector.Sync(r.Context(), tenant.ID, asOf, authorizer.Enforcer()); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "policy sync failed")
		return
	}
	writeServerJSON(w, map[string]any{
		"as_of":  asOf,
		"tenant": tenant.ID,
		"synced": true,
	})
}
