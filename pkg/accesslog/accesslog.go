// Package accesslog provides a middleware that records every RESTful API call in a log message.
package accesslog

import (
	"net/http"
	"time"

	"github.com/KretovDmitry/ordergate/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id between the gateway and the services.
const HeaderRequestID = "X-Request-ID"

// Handler returns a middleware that records an access log message for every HTTP request being processed.
// A request id is taken from the X-Request-ID header or generated, put into the request
// context and echoed back in the response.
func Handler(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
				r.Header.Set(HeaderRequestID, requestID)
			}
			w.Header().Set(HeaderRequestID, requestID)

			ctx := logger.WithRequestID(r.Context(), requestID, r.Header.Get("X-Correlation-ID"))
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				l.With(ctx, "duration", time.Since(start).Milliseconds(), "status", status).
					Infof("%s %s %s %d %d", r.Method, r.URL.Path, r.Proto, status, ww.BytesWritten())
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
