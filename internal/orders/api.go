package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/internal/models/order"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CreateOrderParams defines parameters for CreateOrder.
type CreateOrderParams struct {
	TotalAmount decimal.Decimal
	Items       json.RawMessage
}

// UpdateStatusParams defines parameters for UpdateOrderStatus.
type UpdateStatusParams struct {
	Status order.Status
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Liveness and storage connectivity (GET /health).
	Health(w http.ResponseWriter, r *http.Request)
	// Caller's orders, newest first (GET /api/orders).
	GetOrders(w http.ResponseWriter, r *http.Request)
	// New order (POST /api/orders).
	CreateOrder(w http.ResponseWriter, r *http.Request, params CreateOrderParams)
	// One of the caller's orders (GET /api/orders/{id}).
	GetOrder(w http.ResponseWriter, r *http.Request, orderID int64)
	// Status change (PUT /api/orders/{id}/status).
	UpdateOrderStatus(w http.ResponseWriter, r *http.Request, orderID int64, params UpdateStatusParams)
}

// ServerInterfaceWrapper converts payloads to parameters.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

type createOrderRequest struct {
	TotalAmount *decimal.Decimal `json:"totalAmount"`
	Items       json.RawMessage  `json:"items"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Create order operation middleware.
func (siw *ServerInterfaceWrapper) CreateOrder(w http.ResponseWriter, r *http.Request) {
	// ------------- Required application/json content type ----------

	if !isApplicationJSONContentType(r) {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: invalid content type", errs.ErrInvalidRequest))
		return
	}

	// ------------- Parse and validate request body params ----------

	defer r.Body.Close()

	var payload createOrderRequest

	if err := decodeJSONBody(r.Body, &payload); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	// ------------- Required JSON body parameter "items" -------------

	items := bytes.TrimSpace(payload.Items)
	if len(items) == 0 || bytes.Equal(items, []byte("null")) {
		siw.ErrorHandlerFunc(w, r, &errs.RequiredJSONBodyParamError{ParamName: "items"})
		return
	}

	var lines []json.RawMessage
	if err := json.Unmarshal(items, &lines); err != nil {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: items must be an array", errs.ErrInvalidRequest))
		return
	}
	if len(lines) == 0 {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: items must not be empty", errs.ErrInvalidRequest))
		return
	}

	// ------------- Required JSON body parameter "totalAmount" -------

	if payload.TotalAmount == nil {
		siw.ErrorHandlerFunc(w, r, &errs.RequiredJSONBodyParamError{ParamName: "totalAmount"})
		return
	}
	if !payload.TotalAmount.IsPositive() {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: totalAmount must be positive", errs.ErrInvalidRequest))
		return
	}

	siw.Handler.CreateOrder(w, r, CreateOrderParams{
		Items:       items,
		TotalAmount: *payload.TotalAmount,
	})
}

// Get order operation middleware.
func (siw *ServerInterfaceWrapper) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	siw.Handler.GetOrder(w, r, orderID)
}

// Update order status operation middleware.
func (siw *ServerInterfaceWrapper) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	if !isApplicationJSONContentType(r) {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: invalid content type", errs.ErrInvalidRequest))
		return
	}

	defer r.Body.Close()

	var payload updateStatusRequest

	if err = decodeJSONBody(r.Body, &payload); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	// ------------- Required JSON body parameter "status" ------------

	if payload.Status == "" {
		siw.ErrorHandlerFunc(w, r, &errs.RequiredJSONBodyParamError{ParamName: "status"})
		return
	}

	siw.Handler.UpdateOrderStatus(w, r, orderID, UpdateStatusParams{
		Status: order.Status(payload.Status),
	})
}

// Handler creates http.Handler with the order routes.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
	BaseRouter       chi.Router
	BaseURL          string
	Middlewares      []MiddlewareFunc
}

// HandlerWithOptions creates http.Handler with additional options.
// Middlewares apply to the order routes only, never to /health.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		options.ErrorHandlerFunc(w, r, errs.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		options.ErrorHandlerFunc(w, r, errs.ErrMethodNotAllowed)
	})

	r.Get("/health", si.Health)

	r.Group(func(r chi.Router) {
		for _, middleware := range options.Middlewares {
			r.Use(middleware)
		}
		r.Get(options.BaseURL+"/orders", si.GetOrders)
		r.Post(options.BaseURL+"/orders", wrapper.CreateOrder)
		r.Get(options.BaseURL+"/orders/{id}", wrapper.GetOrder)
		r.Put(options.BaseURL+"/orders/{id}/status", wrapper.UpdateOrderStatus)
	})

	return r
}

func orderIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id", errs.ErrInvalidRequest)
	}
	return id, nil
}

// isApplicationJSONContentType returns true if the content type of the
// request is application/json, parameters such as charset allowed.
func isApplicationJSONContentType(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeJSONBody decodes exactly one JSON value from body into v.
// Anything but whitespace after that value is rejected.
func decodeJSONBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)

	if err := dec.Decode(v); err != nil {
		return checkJSONDecodeError(err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", errs.ErrInvalidRequest)
	}

	return nil
}

func checkJSONDecodeError(err error) error {
	var e *json.UnmarshalTypeError
	if errors.As(err, &e) {
		return fmt.Errorf("%w: %s must be of type %s, got %s",
			errs.ErrInvalidRequest, e.Field, e.Type, e.Value)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: empty body", errs.ErrInvalidRequest)
	}

	return fmt.Errorf("%w: malformed JSON body", errs.ErrInvalidRequest)
}
