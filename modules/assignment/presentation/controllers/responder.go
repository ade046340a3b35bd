package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
)

type errorEnvelope struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	TraceID     string            `json:"trace_id"`
	Meta        errorEnvelopeMeta `json:"meta"`
	Conflicting *types.Assignment `json:"conflicting_assignment,omitempty"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

// writeOverlapError carries the conflicting record so callers can surface
// "this conflicts with record X" to a user.
func writeOverlapError(w http.ResponseWriter, r *http.Request, message string, conflicting types.Assignment) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusConflict)
	env := errorEnvelope{
		Code:    "overlap_conflict",
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	}
	if conflicting.AssignmentID != "" {
		env.Conflicting = &conflicting
	}
	_ = json.NewEncoder(w).Encode(env)
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
