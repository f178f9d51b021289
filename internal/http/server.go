// Package http provides the HTTP API for incidentd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/engine"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
)

// Analyzer is the retrieval surface the API exposes.
type Analyzer interface {
	Analyze(ctx context.Context, query string, maxSolutions int) (*engine.Result, error)
	Rebuild(ctx context.Context) error
	RecordCount() int
}

// Server provides HTTP endpoints for incidentd.
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	store    knowledge.Store
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(analyzer Analyzer, store knowledge.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		analyzer: analyzer,
		store:    store,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/records", s.handleAddRecord)
	v1.GET("/records/count", s.handleRecordCount)
	v1.GET("/records/:id", s.handleGetRecord)
}

// AnalyzeRequest is the request body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Query        string `json:"query"`
	MaxSolutions int    `json:"max_solutions"`
}

// AddRecordRequest is the request body for POST /api/v1/records.
type AddRecordRequest struct {
	Failure   string `json:"failure"`
	RootCause string `json:"root_cause"`
	Solution  string `json:"solution"`
}

// AddRecordResponse is the response body for POST /api/v1/records.
type AddRecordResponse struct {
	ID int64 `json:"id"`
}

// RecordCountResponse is the response body for GET /api/v1/records/count.
type RecordCountResponse struct {
	Count int `json:"count"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Records: s.analyzer.RecordCount(),
	})
}

// handleAnalyze retrieves known incidents matching the reported issue.
func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid analyze request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.analyzer.Analyze(c.Request().Context(), req.Query, req.MaxSolutions)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidQuery):
			return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
		case errors.Is(err, engine.ErrClosed):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
		default:
			s.logger.Error("analysis failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
		}
	}

	return c.JSON(http.StatusOK, result)
}

// handleAddRecord stores a new incident and rebuilds the index so it
// becomes searchable immediately.
func (s *Server) handleAddRecord(c echo.Context) error {
	var req AddRecordRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid record request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec := knowledge.Record{
		Failure:   req.Failure,
		RootCause: req.RootCause,
		Solution:  req.Solution,
	}

	id, err := s.store.Add(c.Request().Context(), rec)
	if err != nil {
		if errors.Is(err, knowledge.ErrInvalidRecord) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("failed to store record", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store record")
	}

	if err := s.analyzer.Rebuild(c.Request().Context()); err != nil {
		// The record is durable; only its searchability lags until the
		// next successful rebuild.
		s.logger.Error("index rebuild failed after record add",
			zap.Int64("id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "record stored but index rebuild failed")
	}

	s.logger.Info("added incident record", zap.Int64("id", id))
	return c.JSON(http.StatusCreated, AddRecordResponse{ID: id})
}

func (s *Server) handleRecordCount(c echo.Context) error {
	count, err := s.store.Count(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to count records", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count records")
	}
	return c.JSON(http.StatusOK, RecordCountResponse{Count: count})
}

func (s *Server) handleGetRecord(c echo.Context) error {
	var id int64
	if err := echo.PathParamsBinder(c).Int64("id", &id).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	rec, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		s.logger.Error("failed to load record", zap.Int64("id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load record")
	}

	return c.JSON(http.StatusOK, rec)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
