package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/conn"
	"github.com/nyxikitty/mpp-server/internal/hub"
)

// Server owns the echo instance, the hub it dispatches into, and the
// connection gate guarding the upgrade route.
type Server struct {
	hub    *hub.Hub
	echo   *echo.Echo
	gate   *Gate
	opts   conn.Options
	logger *zerolog.Logger
}

// NewServer wires routes over an already-constructed hub.
func NewServer(h *hub.Hub, gate *Gate, opts conn.Options, logger *zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{hub: h, echo: e, gate: gate, opts: opts, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Serve(w, r, s.hub, s.opts, s.logger); err != nil {
			s.logger.Debug().Err(err).Msg("connection serve error")
		}
	})
	s.echo.GET("/ws", echo.WrapHandler(s.gate.Middleware(wsHandler)))

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.hub.Metrics.Summary())
	})
}

// Start blocks serving on address (e.g. ":8080").
func (s *Server) Start(address string) error {
	s.logger.Info().Str("addr", address).Msg("server starting")
	return s.echo.Start(address)
}

// Shutdown stops the server immediately, closing the listener and any
// open connections.
func (s *Server) Shutdown() error {
	return s.echo.Close()
}
