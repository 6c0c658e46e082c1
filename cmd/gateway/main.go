package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KretovDmitry/ordergate/internal/auth"
	"github.com/KretovDmitry/ordergate/internal/config"
	"github.com/KretovDmitry/ordergate/internal/gateway"
	"github.com/KretovDmitry/ordergate/internal/jwt"
	"github.com/KretovDmitry/ordergate/pkg/accesslog"
	"github.com/KretovDmitry/ordergate/pkg/limiter"
	"github.com/KretovDmitry/ordergate/pkg/logger"
	"github.com/KretovDmitry/ordergate/pkg/metrics"
	"github.com/KretovDmitry/ordergate/pkg/unzip"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nanmu42/gzip"
	"github.com/redis/go-redis/v9"
)

// Version indicates the current version of the application.
var Version = "1.0.0"

const serviceName = "api-gateway"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Server run context.
	serverCtx, serverStopCtx := context.WithCancel(context.Background())
	defer serverStopCtx()

	// Load application configurations.
	cfg := config.MustLoad(":3000")

	// Create root logger tagged with server version.
	logger := logger.New(cfg).With(serverCtx, "service", serviceName, "version", Version)
	defer func() { _ = logger.Sync() }()

	rateLimiter, closeLimiter, err := initLimiter(serverCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	identityProxy, err := gateway.NewProxy("identity", cfg.IdentityAddr, cfg.Upstream.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to init identity proxy: %w", err)
	}

	ordersProxy, err := gateway.NewProxy("orders", cfg.OrdersAddr, cfg.Upstream.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to init orders proxy: %w", err)
	}

	verifier, err := jwt.NewVerifier(cfg.JWT.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to init token verifier: %w", err)
	}

	gw, err := gateway.New(identityProxy, ordersProxy, logger)
	if err != nil {
		return fmt.Errorf("failed to init gateway: %w", err)
	}

	// Create root router.
	router := initRootRouter(logger, cfg.RateLimit.TrustProxy)

	gateway.HandlerWithOptions(gw, gateway.ChiServerOptions{
		BaseRouter: router,
		Admission: []gateway.MiddlewareFunc{
			limiter.Middleware(rateLimiter, logger, gw.ErrorHandlerFunc),
			unzip.Middleware(logger),
		},
		Auth: []gateway.MiddlewareFunc{
			auth.Middleware(verifier, gw.ErrorHandlerFunc),
		},
	})

	// Build HTTP server.
	hs := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
		Handler:           router,
	}

	go shutdownOnSignal(serverCtx, serverStopCtx, hs, cfg.HTTPServer.ShutdownTimeout, logger)

	// Start the HTTP server with graceful shutdown.
	logger.Infof("Server %v is running at %v", Version, cfg.HTTPServer.Address)
	if err = hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("run server failed: %w", err)
	}

	// Wait for server context to be stopped or force exit if timeout exceeded.
	select {
	case <-serverCtx.Done():
	case <-time.After(cfg.HTTPServer.ShutdownTimeout):
		return errors.New("graceful shutdown timed out.. forcing exit")
	}

	return nil
}

// initLimiter returns the Redis-backed window when an address is configured
// and the in-process one otherwise.
func initLimiter(ctx context.Context, cfg *config.Config, logger logger.Logger) (limiter.Limiter, func(), error) {
	window, requests := cfg.RateLimit.Window, cfg.RateLimit.Requests

	if cfg.RateLimit.RedisAddr == "" {
		sw := limiter.NewSlidingWindow(window, requests)
		go sw.Run(ctx)
		logger.Infof("rate limiter: in memory, %d requests per %s", requests, window)
		return sw, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Upstream.Timeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Infof("rate limiter: redis at %s, %d requests per %s", cfg.RateLimit.RedisAddr, requests, window)

	return limiter.NewRedis(rdb, window, requests), func() {
		if err := rdb.Close(); err != nil {
			logger.Error(err)
		}
	}, nil
}

func initRootRouter(logger logger.Logger, trustProxy bool) *chi.Mux {
	router := chi.NewRouter()
	if trustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(accesslog.Handler(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware(serviceName))
	router.Use(gzip.DefaultHandler().WrapHandler)

	router.Handle("/metrics", metrics.Handler())

	return router
}

// Graceful shutdown.
func shutdownOnSignal(
	serverCtx context.Context,
	serverStopCtx context.CancelFunc,
	hs *http.Server,
	timeout time.Duration,
	logger logger.Logger,
) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT,
		syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)

	s := <-sig

	logger.With(serverCtx, "signal", s.String()).
		Infof("Shutting down server with %s timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(serverCtx, timeout)
	defer cancel()

	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %s", err)
	}
	serverStopCtx()
}
