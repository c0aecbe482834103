package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/you/go-flightshark/internal/aggregator"
	"github.com/you/go-flightshark/internal/auth"
)

func (s *Server) providerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.ProviderStatus(c.Request().Context()))
}

func (s *Server) resetProvider(c echo.Context) error {
	name := c.Param("name")
	if err := s.svc.ResetProvider(name); err != nil {
		if errors.Is(err, aggregator.ErrUnknownProvider) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
		}
		return err
	}
	slog.Info("provider reset by operator", "provider", name, "user", auth.Subject(c))
	return c.NoContent(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	// Admin clients authenticate with a token, not cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// streamProviderStatus pushes the provider snapshot right away and then on
// every tick until the client goes away.
func (s *Server) streamProviderStatus(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()

	// Reads only notice the close frame; nothing is expected from the client.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.StatusPushInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.svc.ProviderStatus(ctx)); err != nil {
			slog.Info("status stream closed", "err", err)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return nil
		case <-ticker.C:
		}
	}
}
