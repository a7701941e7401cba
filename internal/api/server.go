// Package api provides the HTTP REST API for Pay-to-Power Core.
//
// It exposes device registration and command operations (wifi, client
// mode, subscriptions) to back-office callers. Commands issued here are
// queued in the outbox and pushed to devices over MQTT.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PCSdevs/pay-to-power-core/internal/auth"
	"github.com/PCSdevs/pay-to-power-core/internal/command"
	"github.com/PCSdevs/pay-to-power-core/internal/device"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/config"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/logging"
	"github.com/PCSdevs/pay-to-power-core/internal/outbox"
	"github.com/PCSdevs/pay-to-power-core/internal/subscription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Security      config.SecurityConfig
	Logger        *logging.Logger
	Issuer        *command.Issuer
	Devices       *device.Registry
	Subscriptions subscription.Repository
	Outbox        outbox.Store
	Authorizer    auth.Authorizer
	Version       string
}

// Server is the HTTP API server for Pay-to-Power Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	secCfg        config.SecurityConfig
	logger        *logging.Logger
	issuer        *command.Issuer
	devices       *device.Registry
	subscriptions subscription.Repository
	outbox        outbox.Store
	authorizer    auth.Authorizer
	version       string
	server        *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("command issuer is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Authorizer == nil {
		deps.Authorizer = auth.NewRoleAuthorizer()
	}

	return &Server{
		cfg:           deps.Config,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		issuer:        deps.Issuer,
		devices:       deps.Devices,
		subscriptions: deps.Subscriptions,
		outbox:        deps.Outbox,
		authorizer:    deps.Authorizer,
		version:       deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
