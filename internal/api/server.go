// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
	"github.com/resuralph/ralphstack/internal/logging"
	"github.com/resuralph/ralphstack/internal/metastructure"
	"github.com/resuralph/ralphstack/internal/metastructure/datastore"
	"github.com/resuralph/ralphstack/internal/metrics"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const (
	BasePath            = "/api/v1"
	CommandsRoute       = BasePath + "/commands"
	CommandStatusRoute  = BasePath + "/commands/:id"
	StackResourcesRoute = BasePath + "/stacks/:stack/resources"
	StackOutputsRoute   = BasePath + "/stacks/:stack/outputs"
	StackDriftRoute     = BasePath + "/stacks/:stack/drift"
	StatsRoute          = BasePath + "/stats"

	HealthRoute  = BasePath + "/health"
	MetricsRoute = "/metrics"
)

// Server is the read-only HTTP view of the recorded stacks and commands.
type Server struct {
	echo          *echo.Echo
	metastructure metastructure.MetastructureAPI
	ctx           context.Context
	serverConfig  *pkgmodel.ServerConfig
	otel          *OTel
}

func NewServer(ctx context.Context, ms metastructure.MetastructureAPI, serverConfig *pkgmodel.ServerConfig, otelConfig *pkgmodel.OTelConfig, m *metrics.Metrics) *Server {
	server := &Server{
		metastructure: ms,
		ctx:           ctx,
		serverConfig:  serverConfig,
		otel:          &OTel{otelConfig: otelConfig},
	}

	server.echo = server.configureEcho(m)

	return server
}

// Start serves until the server context is done.
func (s *Server) Start() {
	listen := fmt.Sprintf("%s:%d", s.serverConfig.Hostname, s.serverConfig.Port)
	go func() {
		slog.Info("API server listening", "address", listen)
		if err := s.echo.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.echo.Logger.Error(err)
		}
	}()
	<-s.ctx.Done()
	s.Stop()
}

// Stop gracefully shuts down the server, waiting for ongoing requests to complete
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	slog.Info("API server received shutdown")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		slog.Info("API server error when shutting down", "error", err)
	}
	s.shutdownOTel()
	slog.Info("API Server successfully shutdown")
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) configureEcho(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Logger = logging.NewEchoLogger()
	e.StdLogger = log.Default()

	e.GET(CommandsRoute, s.ListCommandStatus)
	e.GET(CommandStatusRoute, s.CommandStatus)

	e.GET(StackResourcesRoute, s.StackResources)
	e.GET(StackOutputsRoute, s.StackOutputs)
	e.GET(StackDriftRoute, s.StackDrift)

	e.GET(StatsRoute, s.Stats)
	e.GET(HealthRoute, s.Health)

	e.GET(MetricsRoute, s.metricsHandler(m))

	return e
}

// ListCommandStatus returns the most recent commands, optionally filtered by the stack,
// command and status query parameters.
func (s *Server) ListCommandStatus(c echo.Context) error {
	n := datastore.DefaultStackCommandsQueryLimit
	if maxResults := c.QueryParam("max_results"); maxResults != "" {
		var err error
		if n, err = strconv.Atoi(maxResults); err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "max_results must be a positive integer")
		}
	}

	query := &datastore.StatusQuery{
		Stack:   requiredItem(c.QueryParam("stack")),
		Command: requiredItem(c.QueryParam("command")),
		Status:  requiredItem(c.QueryParam("status")),
		N:       n,
	}
	if clientID := c.Request().Header.Get("Client-ID"); clientID != "" {
		query.ClientID = requiredItem(clientID)
	}

	result, err := s.metastructure.Status(query)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) CommandStatus(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	result, err := s.metastructure.Status(&datastore.StatusQuery{CommandID: requiredItem(id), N: 1})
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) StackResources(c echo.Context) error {
	result, err := s.metastructure.Inventory(c.Param("stack"))
	if err != nil {
		return mapError(c, err)
	}
	if len(result.Resources) == 0 {
		return apiError(c, http.StatusNotFound, apimodel.StackNotFound, apimodel.StackNotFoundError{StackLabel: c.Param("stack")})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) StackOutputs(c echo.Context) error {
	result, err := s.metastructure.Outputs(c.Param("stack"))
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// StackDrift reads every managed resource of the stack from the cloud and reports the
// ones that no longer match the recorded state.
func (s *Server) StackDrift(c echo.Context) error {
	result, err := s.metastructure.Drift(c.Request().Context(), c.Param("stack"))
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) Stats(c echo.Context) error {
	stats, err := s.metastructure.Stats()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, nil)
}

func requiredItem(value string) *datastore.QueryItem[string] {
	if value == "" {
		return nil
	}
	return &datastore.QueryItem[string]{Item: value, Constraint: datastore.Required}
}

// mapError maps metastructure errors to appropriate HTTP responses
func mapError(c echo.Context, err error) error {
	var stackNotFound apimodel.StackNotFoundError
	if errors.As(err, &stackNotFound) {
		return apiError(c, http.StatusNotFound, apimodel.StackNotFound, stackNotFound)
	}

	var commandNotFound apimodel.CommandNotFoundError
	if errors.As(err, &commandNotFound) {
		return apiError(c, http.StatusNotFound, apimodel.CommandNotFound, commandNotFound)
	}

	var referencesNotFound apimodel.ReferencedResourcesNotFoundError
	if errors.As(err, &referencesNotFound) {
		return apiError(c, http.StatusConflict, apimodel.ReferencedResourcesNotFound, referencesNotFound)
	}

	var stateTooNew apimodel.StateVersionTooNewError
	if errors.As(err, &stateTooNew) {
		return apiError(c, http.StatusConflict, apimodel.StateVersionTooNew, stateTooNew)
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return nil
}

// apiError is a helper to wrap error data in ErrorResponse[T] and return as json
func apiError[T any](c echo.Context, status int, errorType apimodel.APIError, data T) error {
	return c.JSON(status, apimodel.ErrorResponse[T]{
		ErrorType: errorType,
		Data:      data,
	})
}
