package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"adperf/internal/platform/net/middleware"
)

// RequestTimeout caps a request; it sits above the default kpi query timeout
const RequestTimeout = 90 * time.Second

// CommonStack returns a baseline per module middleware slice
func CommonStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.RealIP(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability
		middleware.AccessLog,

		// cross-origin, any origin
		middleware.CORS(),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(RequestTimeout),
	}
}
