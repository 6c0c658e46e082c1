package limiter

import (
	"net"
	"net/http"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/pkg/logger"
)

// Middleware rejects requests over the limit with errs.ErrRateLimit before
// they reach any handler. Clients are keyed by remote address. When the
// limiter itself fails the request is let through.
func Middleware(
	l Limiter,
	logger logger.Logger,
	errorHandler func(w http.ResponseWriter, r *http.Request, err error),
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			key := clientAddr(r)

			ok, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.With(r.Context(), "client", key).Errorf("rate limiter: %s", err)
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				errorHandler(w, r, errs.ErrRateLimit)
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(f)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
