package server

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// effectiveHost resolves the hostname used for tenant lookup: lowercased,
// port stripped, taken from X-Forwarded-Host only when TRUST_PROXY=1.
func effectiveHost(r *http.Request) string {
	host := r.Host
	if os.Getenv("TRUST_PROXY") == "1" {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Host"), ",")
		if first = strings.TrimSpace(first); first != "" {
			host = first
		}
	}
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
