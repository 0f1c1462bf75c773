// Package httpapi serves the JSON API and the catalog pages over echo.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bookshelf/internal/service"
)

// Server is the HTTP surface of the application
type Server struct {
	echo    *echo.Echo
	svc     *service.Service
	logger  *zap.Logger
	metrics *Metrics
	http    *http.Server
}

// New creates the server and registers all routes
func New(svc *service.Service, logger *zap.Logger) (*Server, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		metrics: NewMetrics(),
		http: &http.Server{
			Handler:      e,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	e.HTTPErrorHandler = s.handleError

	s.registerMiddlewares()
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := s.echo.Group("/api")
	api.GET("/books", s.apiListBooks)
	api.POST("/books", s.apiCreateBook)
	api.GET("/books/:id", s.apiGetBook)
	api.POST("/books/:id/rent", s.apiRentBook)
	api.PUT("/books/:id/return", s.apiReturnBook)
	api.GET("/categories", s.apiListCategories)
	api.GET("/users", s.apiListUsers)
	api.GET("/users/:id/rentals", s.apiUserRentals)
	api.GET("/stats/top-books", s.apiTopBooks)

	s.echo.GET("/", s.pageHome)
	s.echo.GET("/books", s.pageBooks)
	s.echo.GET("/categories", s.pageCategories)
	s.echo.GET("/categories/:name", s.pageCategory)
	s.echo.GET("/book/:id", s.pageBook)
	s.echo.GET("/users", s.pageUsers)
	s.echo.GET("/user/:id", s.pageUser)
	s.echo.GET("/available", s.pageAvailable)
	s.echo.GET("/rented", s.pageRented)
}

// Mount registers an extra POST endpoint, such as the bot webhook
func (s *Server) Mount(path string, h http.Handler) {
	s.echo.POST(path, echo.WrapHandler(h))
}

// Metrics returns the server's Prometheus collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until the server stops
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleError renders JSON errors under /api and plain text elsewhere
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, message := http.StatusInternalServerError, "internal error"
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		message = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
	case service.KindOf(err) != service.KindInternal:
		status = statusOf(service.KindOf(err))
		message = service.MessageOf(err)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", c.Request().URL.Path),
			zap.String("req_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		err = c.JSON(status, echo.Map{"error": message})
	} else {
		err = c.String(status, message)
	}
	if err != nil {
		s.logger.Warn("Failed to write error response", zap.Error(err))
	}
}

func statusOf(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindBadRequest, service.KindConflict:
		return http.StatusBadRequest
	case service.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
