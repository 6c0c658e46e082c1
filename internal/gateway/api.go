package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const serviceName = "api-gateway"

type MiddlewareFunc func(http.Handler) http.Handler

// Gateway routes client requests to the upstream services.
type Gateway struct {
	identity http.Handler
	orders   http.Handler
	logger   logger.Logger
}

func New(identity, orders http.Handler, logger logger.Logger) (*Gateway, error) {
	if identity == nil {
		return nil, errors.New("nil dependency: identity upstream")
	}
	if orders == nil {
		return nil, errors.New("nil dependency: orders upstream")
	}
	if logger == nil {
		return nil, errors.New("nil dependency: logger")
	}

	return &Gateway{identity: identity, orders: orders, logger: logger}, nil
}

type ChiServerOptions struct {
	BaseRouter chi.Router
	// Run in order on every /api request, before authentication.
	// Request body decoding goes after the rate limiter.
	Admission []MiddlewareFunc
	// Run on protected routes only.
	Auth []MiddlewareFunc
}

// HandlerWithOptions mounts the gateway routes on options.BaseRouter.
func HandlerWithOptions(g *Gateway, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		g.ErrorHandlerFunc(w, r, errs.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		g.ErrorHandlerFunc(w, r, errs.ErrMethodNotAllowed)
	})

	r.Get("/health", g.Health)

	r.Route("/api", func(r chi.Router) {
		for _, middleware := range options.Admission {
			r.Use(middleware)
		}

		// Public.
		r.Post("/users/register", g.identity.ServeHTTP)
		r.Post("/users/login", g.identity.ServeHTTP)

		// Protected.
		r.Group(func(r chi.Router) {
			for _, middleware := range options.Auth {
				r.Use(middleware)
			}
			r.Get("/users/{id}", g.identity.ServeHTTP)
			r.Get("/orders", g.orders.ServeHTTP)
			r.Post("/orders", g.orders.ServeHTTP)
			r.Get("/orders/{id}", g.orders.ServeHTTP)
			r.Put("/orders/{id}/status", g.orders.ServeHTTP)
		})
	})

	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// Liveness (GET /health).
func (g *Gateway) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
	})
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code.
func (g *Gateway) ErrorHandlerFunc(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError

	switch {
	// Status Unauthorized (401).
	case errors.Is(err, errs.ErrUnauthenticated):
		code = http.StatusUnauthorized

	// Status Not Found (404).
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound

	// Status Method Not Allowed (405).
	case errors.Is(err, errs.ErrMethodNotAllowed):
		code = http.StatusMethodNotAllowed

	// Status Too Many Requests (429).
	case errors.Is(err, errs.ErrRateLimit):
		code = http.StatusTooManyRequests
	}

	if code == http.StatusInternalServerError {
		g.logger.With(r.Context()).Error(err)
	}

	writeError(w, code, err)
}
