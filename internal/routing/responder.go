package routing

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// ErrorEnvelope is the JSON error body served on API route classes.
type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    ErrorEnvelopeMeta `json:"meta"`
}

type ErrorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func WriteError(w http.ResponseWriter, r *http.Request, class RouteClass, status int, code string, message string) {
	if !jsonErrorClass(class) && !acceptsJSON(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "<!doctype html><html><body>%s</body></html>", html.EscapeString(message))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta:    ErrorEnvelopeMeta{Path: r.URL.Path, Method: r.Method},
	})
}

func jsonErrorClass(class RouteClass) bool {
	switch class {
	case RouteClassInternalAPI, RouteClassPublicAPI, RouteClassOps:
		return true
	}
	return false
}

func acceptsJSON(r *http.Request) bool {
	accept := strings.TrimSpace(r.Header.Get("Accept"))
	return accept == "application/json" || strings.HasPrefix(accept, "application/json;")
}

// traceIDFromRequest extracts the trace id from a W3C traceparent header:
// version-traceid-spanid-flags, trace id 32 hex chars, not all zeros.
func traceIDFromRequest(r *http.Request) string {
	fields := strings.SplitN(strings.TrimSpace(r.Header.Get("traceparent")), "-", 4)
	if len(fields) != 4 {
		return ""
	}
	id := strings.ToLower(fields[1])
	if len(id) != 32 {
		return ""
	}
	zeros := true
	for _, ch := range id {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
		if ch != '0' {
			zeros = false
		}
	}
	if zeros {
		return ""
	}
	return id
}
