// Package http serves the results of the most recent run.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/artifacts"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/secrets"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	reportPrefix = "final_report_"
	reportSuffix = ".md"
)

// Server provides HTTP endpoints over a run's artifacts.
type Server struct {
	echo     *echo.Echo
	state    StateSource
	layout   artifacts.Layout
	scrubber secrets.Scrubber
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(state StateSource, layout artifacts.Layout, scrubber secrets.Scrubber, logger *logging.Logger, cfg *Config) (*Server, error) {
	if state == nil {
		return nil, fmt.Errorf("state source cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		state:    state,
		layout:   layout,
		scrubber: scrubber,
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
	v1.GET("/state", s.handleState)
	v1.GET("/reports", s.handleReports)
	v1.GET("/reports/:name", s.handleReport)
	v1.POST("/scrub", s.handleScrub)
}

func (s *Server) handleHealth(c echo.Context) error {
	_, loaded := s.state.Current()
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", StateLoaded: loaded})
}

// handleState returns the final state of the last run.
func (s *Server) handleState(c echo.Context) error {
	state, ok := s.state.Current()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no run state recorded yet")
	}
	return c.JSON(http.StatusOK, state)
}

// handleReports lists the reports on disk, sorted by name.
func (s *Server) handleReports(c echo.Context) error {
	entries, err := os.ReadDir(s.layout.ReportsDir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error(c.Request().Context(), "listing reports", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list reports")
	}

	reports := []ReportSummary{}
	for _, e := range entries {
		name, ok := reportName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportSummary{
			Name:       name,
			Path:       s.layout.Rel(s.layout.Report(name)),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })

	return c.JSON(http.StatusOK, ReportsResponse{Reports: reports})
}

// handleReport serves one report as Markdown.
func (s *Server) handleReport(c echo.Context) error {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report name")
	}

	data, err := os.ReadFile(s.layout.Report(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		s.logger.Error(c.Request().Context(), "reading report", zap.String("name", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read report")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// handleScrub previews what the scrubber removes before content is sent
// to the model.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)
	s.logger.Debug(c.Request().Context(), "scrubbed content",
		zap.Int("findings", result.TotalFindings),
		zap.Duration("duration", result.Duration),
	)

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
		ByRule:        result.ByRule,
	})
}

// reportName extracts the route name from a report file name.
func reportName(file string) (string, bool) {
	if !strings.HasPrefix(file, reportPrefix) || !strings.HasSuffix(file, reportSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(file, reportPrefix), reportSuffix)
	return name, name != ""
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It blocks until the server stops and
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
