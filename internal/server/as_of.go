package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
)

const asOfLayout = "2006-01-02"

// asOfOrToday reads the optional as_of query parameter, defaulting to the
// current UTC date. The second return is false when the parameter is present
// but not a valid date.
func asOfOrToday(r *http.Request, nowUTC func() time.Time) (string, bool) {
	asOf := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if asOf == "" {
		if nowUTC == nil {
			nowUTC = time.Now
		}
		return nowUTC().UTC().Format(asOfLayout), true
	}
	if !types.ValidDate(asOf) {
		return "", false
	}
	return asOf, true
}
