// Package healthcheck implements the liveness endpoint: the router is
// healthy iff a route refresh has ever succeeded and happened recently.
package healthcheck

import (
	"net/http"
	"time"
)

// staleAfter is how old the last successful refresh may be before the
// router reports itself unhealthy.
const staleAfter = 600 * time.Second

const never int64 = 0

// TimestampSource reports the unix-seconds timestamp of the last
// successful route refresh, or 0 meaning "never".
type TimestampSource interface {
	LastRefreshTimestamp() int64
}

// Handler returns the GET /openaperture_router_status_check handler.
func Handler(src TimestampSource, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ts := src.LastRefreshTimestamp()
		if ts == never {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if now().Unix()-ts > int64(staleAfter/time.Second) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
