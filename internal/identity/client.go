// Package identity talks to the external identity (user) service.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/pkg/accesslog"
	"github.com/KretovDmitry/ordergate/pkg/logger"
)

// Client performs user existence checks against the identity service.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	baseURL    string
}

// New creates a client for the identity service at baseURL.
// Every call is bounded by timeout.
func New(baseURL string, timeout time.Duration, logger logger.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse identity service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("identity service url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		return nil, errors.New("identity client timeout must be positive")
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Exists reports whether the user is known to the identity service,
// forwarding the caller's credential unchanged.
//
// Every failure, including a timeout or an unreachable service, is
// reported as errs.ErrUserNotFound. No retries are made.
func (c *Client) Exists(ctx context.Context, userID int, credential string) error {
	if err := c.lookup(ctx, userID, credential); err != nil {
		c.logger.With(ctx, "user_id", userID).Warnf("identity check failed: %s", err)
		return errs.ErrUserNotFound
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, userID int, credential string) error {
	endpoint := c.baseURL + "/api/users/" + strconv.Itoa(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", credential)
	req.Header.Set("Accept", "application/json")
	if id, ok := logger.RequestIDFromContext(ctx); ok {
		req.Header.Set(accesslog.HeaderRequestID, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}
