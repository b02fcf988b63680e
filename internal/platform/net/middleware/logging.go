package middleware

import (
	"net/http"
	"time"

	"adperf/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// SlowRequest is the elapsed time above which a request logs at warn
const SlowRequest = 500 * time.Millisecond

// AccessLog logs request duration and status
// the request id is copied onto the logger context so handlers log it too
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &capture{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		ctx := logger.WithRequest(r.Context(), chimw.GetReqID(r.Context()), "")
		r = r.WithContext(ctx)

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		log := logger.C(ctx)
		evt := log.Info()
		if elapsed >= SlowRequest {
			evt = log.Warn()
		}
		evt.Int("status", sw.status).
			Dur("elapsed", elapsed).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request done")
	})
}

type capture struct {
	http.ResponseWriter
	status int
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the wrapper
func (c *capture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
