// Package server exposes the poller controls and the stored feeds over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/extract"
	"github.com/mikig28/secbrain/internal/ingest"
	"github.com/mikig28/secbrain/internal/poller"
	"github.com/mikig28/secbrain/internal/storage"
)

// Controller is the poller as seen by the control surface.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() poller.Status
	QRCode(ctx context.Context) ([]byte, error)
}

// Ingester runs a message through the persistence rules.
type Ingester interface {
	Process(ctx context.Context, msg extract.ChatMessage) ingest.Outcome
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	MaxRequestSize int
	// ImagesDir is served under ImagesURL when set.
	ImagesDir string
	ImagesURL string
	Version   string
}

// Server is the HTTP control surface.
type Server struct {
	echo     *echo.Echo
	store    storage.Store
	ctl      Controller
	ingester Ingester
	opts     Options
	log      *zap.Logger
	started  time.Time
}

func New(store storage.Store, ctl Controller, ingester Ingester, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	if opts.ImagesURL == "" {
		opts.ImagesURL = "/images"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		store:    store,
		ctl:      ctl,
		ingester: ingester,
		opts:     opts,
		log:      log.Named("server"),
		started:  time.Now(),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.log.Debug("request", fields...)
			return nil
		},
	}))
	if opts.MaxRequestSize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", opts.MaxRequestSize)))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/status", s.getStatus)

	api := e.Group("/api")
	api.POST("/whatsapp", s.postWhatsApp)
	api.DELETE("/whatsapp", s.deleteWhatsApp)
	api.GET("/whatsapp/status", s.getWhatsAppStatus)
	api.GET("/whatsapp/qr", s.getWhatsAppQR)

	api.GET("/messages", s.listMessages)
	api.POST("/messages", s.postMessage)
	api.GET("/videos", s.listVideos)
	api.GET("/links", s.listLinks)

	api.DELETE("/thoughts/:id", s.deleteThought)
	api.DELETE("/videos/:id", s.deleteVideo)
	api.DELETE("/links/:id", s.deleteLink)

	if s.opts.ImagesDir != "" {
		e.Static(s.opts.ImagesURL, s.opts.ImagesDir)
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe blocks until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.opts.Addr))
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.opts.Addr, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}
	if err := fail(c, code, msg); err != nil {
		s.log.Debug("write error response", zap.Error(err))
	}
}
