// Package httpdebug is the optional debug HTTP surface (SPEC_FULL.md
// §4): a thin Echo server exposing /healthz (the Process Manager's
// health predicate) and /metrics (Prometheus), off by default and
// enabled only when GAN_DEBUG_HTTP_ADDR is set. Grounded on
// pkg/server/server.go's Echo wiring (middleware, graceful Start/
// Shutdown on context cancellation) and cmd/contextd/main.go's
// `srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))`
// line.
package httpdebug

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DRCubix/gansauditor-codex/internal/procmgr"
)

// Server is the debug HTTP surface.
type Server struct {
	addr   string
	pm     *procmgr.Manager
	logger *zap.Logger
	echo   *echo.Echo
}

// New builds a debug Server listening on addr (host:port). pm supplies
// the /healthz predicate; a nil logger falls back to zap.NewNop().
func New(addr string, pm *procmgr.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{addr: addr, pm: pm, logger: logger, echo: e}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

type healthzResponse struct {
	Healthy   bool `json:"healthy"`
	Total     int  `json:"total"`
	Successes int  `json:"successes"`
	Failures  int  `json:"failures"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	h := s.pm.Health()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, healthzResponse{
		Healthy:   h.Healthy,
		Total:     h.Total,
		Successes: h.Successes,
		Failures:  h.Failures,
	})
}

// Start blocks serving until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("httpdebug: server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpdebug: shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
