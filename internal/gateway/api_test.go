package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KretovDmitry/ordergate/internal/auth"
	"github.com/KretovDmitry/ordergate/internal/jwt"
	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/pkg/limiter"
	"github.com/KretovDmitry/ordergate/pkg/logger"
	"github.com/KretovDmitry/ordergate/pkg/unzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

// Counts calls and answers like a real upstream would.
type upstream struct {
	name  string
	paths []string
	mu    sync.Mutex
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.paths = append(u.paths, r.Method+" "+r.URL.Path)
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"upstream":"` + u.name + `"}`))
}

func (u *upstream) calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

type testGateway struct {
	handler  http.Handler
	identity *upstream
	orders   *upstream
}

func newTestGateway(t *testing.T, requests int) *testGateway {
	t.Helper()

	l, _ := logger.NewForTest()
	tg := &testGateway{
		identity: &upstream{name: "identity"},
		orders:   &upstream{name: "orders"},
	}

	g, err := New(tg.identity, tg.orders, l)
	require.NoError(t, err)

	verifier, err := jwt.NewVerifier(secret)
	require.NoError(t, err)

	tg.handler = HandlerWithOptions(g, ChiServerOptions{
		Admission: []MiddlewareFunc{
			limiter.Middleware(limiter.NewSlidingWindow(time.Minute, requests), l, g.ErrorHandlerFunc),
			unzip.Middleware(l),
		},
		Auth: []MiddlewareFunc{auth.Middleware(verifier, g.ErrorHandlerFunc)},
	})

	return tg
}

func (tg *testGateway) do(t *testing.T, method, path, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	tg.handler.ServeHTTP(w, r)

	return w
}

func token(t *testing.T, userID int) string {
	t.Helper()

	s, err := jwt.BuildString(userID, secret, time.Hour)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	l, _ := logger.NewForTest()
	u := &upstream{}

	_, err := New(nil, u, l)
	assert.Error(t, err)
	_, err = New(u, nil, l)
	assert.Error(t, err)
	_, err = New(u, u, nil)
	assert.Error(t, err)
}

func TestRouting(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		auth     bool
		upstream string
	}{
		{name: "register is public", method: http.MethodPost, path: "/api/users/register", upstream: "identity"},
		{name: "login is public", method: http.MethodPost, path: "/api/users/login", upstream: "identity"},
		{name: "user lookup", method: http.MethodGet, path: "/api/users/42", auth: true, upstream: "identity"},
		{name: "list orders", method: http.MethodGet, path: "/api/orders", auth: true, upstream: "orders"},
		{name: "create order", method: http.MethodPost, path: "/api/orders", auth: true, upstream: "orders"},
		{name: "get order", method: http.MethodGet, path: "/api/orders/7", auth: true, upstream: "orders"},
		{name: "update status", method: http.MethodPut, path: "/api/orders/7/status", auth: true, upstream: "orders"},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tg := newTestGateway(t, 100)

			var authorization string
			if tt.auth {
				authorization = token(t, 42)
			}

			w := tg.do(t, tt.method, tt.path, authorization)
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"upstream":"`+tt.upstream+`"}`, w.Body.String())

			want := []string{tt.method + " " + tt.path}
			if tt.upstream == "identity" {
				assert.Equal(t, want, tg.identity.calls())
				assert.Empty(t, tg.orders.calls())
			} else {
				assert.Equal(t, want, tg.orders.calls())
				assert.Empty(t, tg.identity.calls())
			}
		})
	}
}

func TestUnauthenticatedNeverForwarded(t *testing.T) {
	tg := newTestGateway(t, 100)

	for _, authorization := range []string{"", "Bearer forged", "Token abc"} {
		w := tg.do(t, http.MethodPost, "/api/orders", authorization)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var body errs.JSON
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.True(t, strings.HasPrefix(body.Error, "unauthenticated"))
	}

	assert.Empty(t, tg.orders.calls())
	assert.Empty(t, tg.identity.calls())
}

func TestRateLimit(t *testing.T) {
	tg := newTestGateway(t, 3)
	bearer := token(t, 42)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/api/orders", bearer).Code)
	}

	w := tg.do(t, http.MethodGet, "/api/orders", bearer)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, w.Body.String())

	// Rejected before authentication and before any upstream call.
	w = tg.do(t, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	w = tg.do(t, http.MethodPost, "/api/users/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.Len(t, tg.orders.calls(), 3)
	assert.Empty(t, tg.identity.calls())

	// Health is outside /api.
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/health", "").Code)
}

func TestHealth(t *testing.T) {
	tg := newTestGateway(t, 1)

	w := tg.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "api-gateway", body.Service)
	assert.False(t, body.Timestamp.IsZero())
}

func TestUnmatchedRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		statusCode int
		response   string
	}{
		{
			name:       "unknown api path",
			method:     http.MethodGet,
			path:       "/api/unknown",
			statusCode: http.StatusNotFound,
			response:   `{"error":"not found"}`,
		},
		{
			name:       "unknown root path",
			method:     http.MethodGet,
			path:       "/unknown",
			statusCode: http.StatusNotFound,
			response:   `{"error":"not found"}`,
		},
		{
			name:       "delete orders",
			method:     http.MethodDelete,
			path:       "/api/orders",
			statusCode: http.StatusMethodNotAllowed,
			response:   `{"error":"method not allowed"}`,
		},
		{
			name:       "put order",
			method:     http.MethodPut,
			path:       "/api/orders/7",
			statusCode: http.StatusMethodNotAllowed,
			response:   `{"error":"method not allowed"}`,
		},
		{
			name:       "post health",
			method:     http.MethodPost,
			path:       "/health",
			statusCode: http.StatusMethodNotAllowed,
			response:   `{"error":"method not allowed"}`,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tg := newTestGateway(t, 100)

			w := tg.do(t, tt.method, tt.path, token(t, 42))
			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.response, w.Body.String())

			assert.Empty(t, tg.orders.calls())
			assert.Empty(t, tg.identity.calls())
		})
	}
}

func TestMalformedGzipAfterRateLimit(t *testing.T) {
	tg := newTestGateway(t, 1)

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader("not gzip"))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		tg.handler.ServeHTTP(w, r)
		return w
	}

	// Admitted, then rejected by the decompressor.
	w := send()
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request: malformed gzip body"}`, w.Body.String())

	// The limit is spent, so the body is never looked at.
	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, w.Body.String())

	assert.Empty(t, tg.identity.calls())
}
