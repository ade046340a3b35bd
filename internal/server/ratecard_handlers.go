package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avigne/Rates-And-Roles/internal/routing"
	assignmenttypes "github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	ratecardservices "github.com/avigne/Rates-And-Roles/modules/ratecard/services"
)

func handleRateStatisticsAPI(w http.ResponseWriter, r *http.Request, svc ratecardservices.RateCardService) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	stats, err := svc.Statistics(r.Context(), tenant.ID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "statistics failed")
		return
	}
	writeServerJSON(w, map[string]any{
		"tenant":     tenant.ID,
		"statistics": stats,
	})
}

func handleRateCurrentAPI(w http.ResponseWriter, r *http.Request, svc ratecardservices.RateCardService, nowUTC func() time.Time) {
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

	rates, err := svc.CurrentRates(r.Context(), tenant.ID, asOf)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "current rates failed")
		return
	}
	if rates == nil {
		rates = make([]assignmenttypes.Assignment, 0)
	}
	writeServerJSON(w, map[string]any{
		"as_of":  asOf,
		"tenant": tenant.ID,
		"rates":  rates,
	})
}

func writeServerJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
