// Package gateway is the single public entry point: it admits, authenticates
// and forwards client requests to the identity and order services.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/pkg/accesslog"
	"github.com/KretovDmitry/ordergate/pkg/logger"
)

// Request headers passed to the upstream. Everything else is dropped.
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept"}

// Proxy forwards requests to one upstream service and relays the
// response status, content type and body verbatim.
type Proxy struct {
	client *http.Client
	logger logger.Logger
	target *url.URL
	name   string
}

// NewProxy creates a proxy to the upstream at baseURL.
// Every forwarded call is bounded by timeout.
func NewProxy(name, baseURL string, timeout time.Duration, logger logger.Logger) (*Proxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%s url %q must be absolute", name, baseURL)
	}
	if timeout <= 0 {
		return nil, errors.New("upstream timeout must be positive")
	}
	if logger == nil {
		return nil, errors.New("nil dependency: logger")
	}

	target.Path = strings.TrimRight(target.Path, "/")

	return &Proxy{
		client: &http.Client{
			Timeout: timeout,
			// Redirects are the client's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		target: target,
		name:   name,
	}, nil
}

// ServeHTTP forwards r with the same method, path, query and body.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := p.forward(r)
	if err != nil {
		p.logger.With(r.Context(), "upstream", p.name).Errorf("forward %s %s: %s", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")

	// Error bodies that are not JSON are replaced, the status is kept.
	if resp.StatusCode >= http.StatusBadRequest && !isJSON(contentType) {
		p.logger.With(r.Context(), "upstream", p.name).
			Warnf("%s %s: upstream answered %d with %q body", r.Method, r.URL.Path, resp.StatusCode, contentType)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		writeError(w, resp.StatusCode, errs.ErrInternal)
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err = io.Copy(w, resp.Body); err != nil {
		p.logger.With(r.Context(), "upstream", p.name).Errorf("relay response body: %s", err)
	}
}

func (p *Proxy) forward(r *http.Request) (*http.Response, error) {
	u := *p.target
	u.Path = p.target.Path + r.URL.Path
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = r.ContentLength

	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if id, ok := logger.RequestIDFromContext(r.Context()); ok {
		req.Header.Set(accesslog.HeaderRequestID, id)
	} else if id = r.Header.Get(accesslog.HeaderRequestID); id != "" {
		req.Header.Set(accesslog.HeaderRequestID, id)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	return resp, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errs.JSON{Error: errs.Public(err)})
}
