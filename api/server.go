// Package api exposes the conversation engine over HTTP for the chat widget.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
)

// Conversation is what the HTTP surface needs from the engine.
type Conversation interface {
	Chat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error)
	Reset(ctx context.Context, sessionID string) error
	CreateSession(ctx context.Context) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type Config struct {
	Port            int           `envconfig:"PORT" default:"3000"`
	StaticDir       string        `split_words:"true"`
	AllowOrigins    []string      `split_words:"true" default:"*"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

type Option func(*Server)

func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

type Server struct {
	conv    Conversation
	cfg     Config
	limiter *RateLimiter
	logger  zerolog.Logger
	now     func() time.Time
	echo    *echo.Echo
}

func NewServer(conv Conversation, cfg Config, opts ...Option) *Server {
	s := &Server{
		conv:   conv,
		cfg:    cfg,
		logger: log.Logger.With().Str("component", "api").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	if cfg.StaticDir != "" {
		e.Static("/", cfg.StaticDir)
	}

	e.GET("/health", s.health)

	g := e.Group("/api", s.limiter.Middleware())
	g.POST("/chat", s.chat)
	g.POST("/chat/reset", s.reset)
	g.POST("/sessions", s.createSession)
	g.DELETE("/sessions/:id", s.deleteSession)

	s.echo = e
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type notFoundBody struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		var werr error
		if he.Code == http.StatusNotFound {
			werr = c.JSON(http.StatusNotFound, notFoundBody{Error: "Not found", Path: c.Request().URL.Path})
		} else {
			werr = c.JSON(he.Code, errorBody{Error: http.StatusText(he.Code)})
		}
		if werr != nil {
			s.logger.Error().Err(werr).Msg("write error response")
		}
		return
	}

	s.logger.Error().Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("request failed")
	if werr := c.JSON(http.StatusInternalServerError, errorBody{
		Error:   "Internal server error",
		Details: "An unexpected error occurred. Please try again.",
	}); werr != nil {
		s.logger.Error().Err(werr).Msg("write error response")
	}
}
