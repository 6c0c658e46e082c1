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
	"github.com/KretovDmitry/ordergate/internal/identity"
	"github.com/KretovDmitry/ordergate/internal/infrastructure/db/postgres"
	"github.com/KretovDmitry/ordergate/internal/jwt"
	"github.com/KretovDmitry/ordergate/internal/orders"
	"github.com/KretovDmitry/ordergate/pkg/accesslog"
	"github.com/KretovDmitry/ordergate/pkg/logger"
	"github.com/KretovDmitry/ordergate/pkg/metrics"
	"github.com/KretovDmitry/ordergate/pkg/unzip"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmcontext "github.com/avito-tech/go-transaction-manager/trm/v2/context"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nanmu42/gzip"
)

// Version indicates the current version of the application.
var Version = "1.0.0"

const serviceName = "order-service"

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
	cfg := config.MustLoad(":3002")

	// Create root logger tagged with server version.
	logger := logger.New(cfg).With(serverCtx, "service", serviceName, "version", Version)
	defer func() { _ = logger.Sync() }()

	db, err := postgres.Connect(serverCtx, cfg.DSN, cfg.DB.QueryTimeout, logger)
	if err != nil {
		return err
	}

	// Close connection.
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error(err)
		}
	}()

	// Create default transaction manager for database/sql package.
	trManager := manager.Must(
		trmsql.NewDefaultFactory(db),
		manager.WithCtxManager(trmcontext.DefaultManager),
	)

	// Init the order store and apply its schema.
	repo, err := orders.NewRepository(db, trmsql.DefaultCtxGetter, logger, cfg.DB.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to init order repository: %w", err)
	}
	if err = repo.Migrate(serverCtx); err != nil {
		return fmt.Errorf("failed to migrate order store: %w", err)
	}

	identityClient, err := identity.New(cfg.IdentityAddr, cfg.Upstream.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to init identity client: %w", err)
	}

	verifier, err := jwt.NewVerifier(cfg.JWT.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to init token verifier: %w", err)
	}

	// Init order service.
	orderService, err := orders.NewService(repo, identityClient, trManager, logger)
	if err != nil {
		return fmt.Errorf("failed to init order service: %w", err)
	}

	// Create root router.
	router := initRootRouter(logger)

	// Init handlers for order routes.
	orders.HandlerWithOptions(orderService, orders.ChiServerOptions{
		BaseURL:    "/api",
		BaseRouter: router,
		Middlewares: []orders.MiddlewareFunc{
			auth.Middleware(verifier, orderService.ErrorHandlerFunc),
		},
		ErrorHandlerFunc: orderService.ErrorHandlerFunc,
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

func initRootRouter(logger logger.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(accesslog.Handler(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware(serviceName))
	router.Use(gzip.DefaultHandler().WrapHandler)
	router.Use(unzip.Middleware(logger))

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
