package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http/middleware"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowThreshold   time.Duration
	MetricsPath     string
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
	Logger          *logger.Logger
}

// Server wraps Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *logger.Logger
	errCh  chan error
}

// NewServer creates a new HTTP server with Echo. Every handler is mounted
// on the same instance.
func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = errorHandler(cfg.Logger)

	e.Use(middleware.Recover(cfg.Logger))
	e.Use(middleware.RequestID())
	if cfg.Registerer != nil {
		e.Use(middleware.RouteLabel())
		e.Use(echo.WrapMiddleware(middleware.Metrics(cfg.Registerer, cfg.Logger, cfg.SlowThreshold)))
	}
	e.Use(middleware.RequestLogging(cfg.Logger))

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}

	if cfg.MetricsPath != "" {
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		echo:   e,
		config: cfg,
		log:    cfg.Logger,
		errCh:  make(chan error, 1),
	}
}

// Start binds the listener synchronously and serves in the background, so
// a port conflict is reported to the caller.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	go func() {
		s.log.Info("http server listening", logger.String("addr", addr))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logger.Error(err))
			s.errCh <- err
		}
	}()
	return nil
}

// Errors reports a fatal serve error after Start.
func (s *Server) Errors() <-chan error { return s.errCh }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// errorHandler keeps framework errors (404, 405, bind errors) in the same
// {"error": "..."} shape as handler errors.
func errorHandler(l *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		var he *echo.HTTPError
		var ae *AppError
		switch {
		case errors.As(err, &ae):
			status, msg = ae.Status, ae.Message
		case errors.As(err, &he):
			status = he.Code
			msg = fmt.Sprintf("%v", he.Message)
		default:
			l.Error("unhandled http error", logger.String("path", c.Path()), logger.Error(err))
		}
		if werr := ErrorResponse(c, status, msg); werr != nil {
			l.Warn("write error response failed", logger.Error(werr))
		}
	}
}

// WithHost sets server host.
func WithHost(host string) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
	}
}

// WithPort sets server port.
func WithPort(port int) ServerOption {
	return func(c *ServerConfig) {
		c.Port = port
	}
}

// WithTimeouts sets read/write/shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) ServerOption {
	return func(c *ServerConfig) {
		c.Logger = l
	}
}

// WithMetrics enables request metrics on reg and exposes gatherer at path.
// An empty path disables the scrape endpoint.
func WithMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer, path string, slow time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.Registerer = reg
		c.Gatherer = gatherer
		c.MetricsPath = path
		c.SlowThreshold = slow
	}
}
