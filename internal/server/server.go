// Package server provides the HTTP API over the admission kernel.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/kernel"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/lockdown"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// Server exposes the kernel's operations as HTTP/JSON endpoints.
type Server struct {
	echo   *echo.Echo
	kernel *kernel.Kernel
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server over the given kernel.
func NewServer(k *kernel.Kernel, logger *zap.Logger, cfg *Config) (*Server, error) {
	if k == nil {
		return nil, fmt.Errorf("kernel cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8844,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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
		echo:   e,
		kernel: k,
		logger: logger,
		config: cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/proposals", s.handleSubmitProposal)
	v1.GET("/drift", s.handleDrift)
	v1.GET("/ledger/verify", s.handleVerify)
	v1.GET("/state", s.handleState)
	v1.GET("/nodes/sync", s.handleNodeSync)
	v1.POST("/commitments/relevant", s.handleRelevant)
}

// ProposalRequest is the request body for POST /api/v1/proposals.
type ProposalRequest struct {
	Vector      []float64 `json:"vector"`
	Quality     float64   `json:"quality"`
	Description string    `json:"description"`
	Query       string    `json:"query,omitempty"`
}

// RelevantRequest is the request body for POST /api/v1/commitments/relevant.
type RelevantRequest struct {
	Vector    []float64 `json:"vector"`
	Threshold float64   `json:"threshold"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Mode:   s.kernel.Mode().String(),
	})
}

// handleSubmitProposal runs one admission pass. A quorum rejection returns
// 409 with the admission result; the caller learns the system is now in
// lockdown from the mode field.
func (s *Server) handleSubmitProposal(c echo.Context) error {
	var req ProposalRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid proposal request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Vector) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "vector field is required")
	}

	res, err := s.kernel.SubmitProposal(c.Request().Context(), proposal.Proposal{
		Vector:      vector.Vector(req.Vector),
		Quality:     req.Quality,
		Description: req.Description,
		Query:       req.Query,
	})
	if err != nil {
		var rejected *kernel.RejectedError
		switch {
		case errors.As(err, &rejected):
			return c.JSON(http.StatusConflict, res)
		case errors.Is(err, lockdown.ErrLockdown):
			return echo.NewHTTPError(http.StatusLocked, err.Error())
		case errors.Is(err, kernel.ErrDimensionMismatch):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("proposal submission failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "admission failed")
		}
	}
	return c.JSON(http.StatusOK, res)
}

// handleDrift reports the current drift measurement.
func (s *Server) handleDrift(c echo.Context) error {
	return c.JSON(http.StatusOK, s.kernel.DriftReport())
}

// handleVerify re-checks the hash chain. A broken chain reports 409 and the
// kernel has already escalated to lockdown.
func (s *Server) handleVerify(c echo.Context) error {
	res, err := s.kernel.VerifyLedger()
	if err != nil {
		if errors.Is(err, kernel.ErrIntegrity) {
			return c.JSON(http.StatusConflict, res)
		}
		s.logger.Error("ledger verification failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}
	return c.JSON(http.StatusOK, res)
}

// handleState reports mode, threshold, ideal and ledger length.
func (s *Server) handleState(c echo.Context) error {
	state, err := s.kernel.SystemState()
	if err != nil {
		s.logger.Error("state query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "state query failed")
	}
	return c.JSON(http.StatusOK, state)
}

// handleNodeSync reports the pairwise node-coherence report.
func (s *Server) handleNodeSync(c echo.Context) error {
	return c.JSON(http.StatusOK, s.kernel.NodeSync())
}

// handleRelevant returns admitted commitments similar to the query vector.
// The threshold may also be given as a query parameter.
func (s *Server) handleRelevant(c echo.Context) error {
	var req RelevantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Vector) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "vector field is required")
	}
	if raw := c.QueryParam("threshold"); raw != "" {
		th, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid threshold parameter")
		}
		req.Threshold = th
	}

	matches, err := s.kernel.Relevant(vector.Vector(req.Vector), req.Threshold)
	if err != nil {
		s.logger.Error("relevance query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "relevance query failed")
	}
	return c.JSON(http.StatusOK, matches)
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
