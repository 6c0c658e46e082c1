package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/claims"
	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/internal/models/order"
	"github.com/KretovDmitry/ordergate/pkg/logger"
)

const serviceName = "order-service"

// IdentityChecker is implemented by *identity.Client.
type IdentityChecker interface {
	Exists(ctx context.Context, userID int, credential string) error
}

// Transactor runs fn in a transaction carried by ctx.
// *manager.Manager from go-transaction-manager satisfies it.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo     Repository
	identity IdentityChecker
	trm      Transactor
	logger   logger.Logger
}

func NewService(
	repo Repository,
	identity IdentityChecker,
	trm Transactor,
	logger logger.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("nil dependency: repository")
	}
	if identity == nil {
		return nil, errors.New("nil dependency: identity checker")
	}
	if trm == nil {
		return nil, errors.New("nil dependency: transaction manager")
	}
	if logger == nil {
		return nil, errors.New("nil dependency: logger")
	}

	return &Service{repo: repo, identity: identity, trm: trm, logger: logger}, nil
}

var _ ServerInterface = (*Service)(nil)

// Create order (POST /api/orders).
func (s *Service) CreateOrder(w http.ResponseWriter, r *http.Request, params CreateOrderParams) {
	c, ok := claims.FromContext(r.Context())
	if !ok {
		s.ErrorHandlerFunc(w, r, errs.ErrUnauthenticated)
		return
	}

	// The user must still be known to the identity service.
	if err := s.identity.Exists(r.Context(), c.UserID, r.Header.Get("Authorization")); err != nil {
		s.ErrorHandlerFunc(w, r, err)
		return
	}

	var created *order.Order

	err := s.trm.Do(r.Context(), func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateOrder(ctx, c.UserID, params.Items, params.TotalAmount)
		return err
	})
	if err != nil {
		s.ErrorHandlerFunc(w, r, fmt.Errorf("create order: %w", err))
		return
	}

	s.writeJSON(w, r, http.StatusCreated, created)
}

// Caller's orders (GET /api/orders).
func (s *Service) GetOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := claims.FromContext(r.Context())
	if !ok {
		s.ErrorHandlerFunc(w, r, errs.ErrUnauthenticated)
		return
	}

	list, err := s.repo.GetOrdersByUserID(r.Context(), c.UserID)
	if err != nil {
		s.ErrorHandlerFunc(w, r, fmt.Errorf("get orders: %w", err))
		return
	}

	s.writeJSON(w, r, http.StatusOK, list)
}

// One order (GET /api/orders/{id}).
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request, orderID int64) {
	c, ok := claims.FromContext(r.Context())
	if !ok {
		s.ErrorHandlerFunc(w, r, errs.ErrUnauthenticated)
		return
	}

	o, err := s.repo.GetOrderForUser(r.Context(), orderID, c.UserID)
	if err != nil {
		s.ErrorHandlerFunc(w, r, fmt.Errorf("get order %d: %w", orderID, err))
		return
	}

	s.writeJSON(w, r, http.StatusOK, o)
}

// Status change (PUT /api/orders/{id}/status).
func (s *Service) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, orderID int64, params UpdateStatusParams) {
	c, ok := claims.FromContext(r.Context())
	if !ok {
		s.ErrorHandlerFunc(w, r, errs.ErrUnauthenticated)
		return
	}

	o, err := s.repo.UpdateStatus(r.Context(), orderID, c.UserID, params.Status)
	if err != nil {
		s.ErrorHandlerFunc(w, r, fmt.Errorf("update order %d: %w", orderID, err))
		return
	}

	s.writeJSON(w, r, http.StatusOK, o)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	DB        string    `json:"db"`
	Timestamp time.Time `json:"timestamp"`
}

// Liveness (GET /health).
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Service:   serviceName,
		DB:        "connected",
		Timestamp: time.Now().UTC(),
	}
	code := http.StatusOK

	if err := s.repo.Ping(r.Context()); err != nil {
		s.logger.With(r.Context()).Errorf("health: ping database: %s", err)
		resp.Status = "error"
		resp.DB = "disconnected"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, r, code, resp)
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code and handling the failure to marshal that.
func (s *Service) ErrorHandlerFunc(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError

	switch {
	// Status Bad Request (400).
	case errors.Is(err, errs.ErrInvalidRequest):
		code = http.StatusBadRequest

	// Status Unauthorized (401).
	case errors.Is(err, errs.ErrUnauthenticated):
		code = http.StatusUnauthorized

	// Status Not Found (404).
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound

	// Status Method Not Allowed (405).
	case errors.Is(err, errs.ErrMethodNotAllowed):
		code = http.StatusMethodNotAllowed
	}

	if code == http.StatusInternalServerError {
		s.logger.With(r.Context()).Error(err)
	}

	s.writeJSON(w, r, code, errs.JSON{Error: errs.Public(err)})
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.With(r.Context()).Errorf("write response: %s", err)
	}
}
