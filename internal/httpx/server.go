package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/you/go-flightshark/internal/auth"
	"github.com/you/go-flightshark/internal/cache"
	"github.com/you/go-flightshark/internal/service"
)

type Options struct {
	CacheTTL           time.Duration
	CalendarCacheTTL   time.Duration
	StatusPushInterval time.Duration
	// LoadTimeout bounds a cache fill shared by concurrent identical requests.
	LoadTimeout time.Duration
}

type Server struct {
	svc    *service.FlightService
	loader *cache.Loader
	auth   *auth.Authenticator
	opts   Options
}

func NewServer(svc *service.FlightService, c cache.Cache, a *auth.Authenticator, opts Options) *Server {
	if opts.StatusPushInterval <= 0 {
		opts.StatusPushInterval = 30 * time.Second
	}
	return &Server{svc: svc, loader: cache.NewLoader(c, opts.LoadTimeout), auth: a, opts: opts}
}

// Echo builds the router with every public and admin route mounted.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.LogAttrs(c.Request().Context(), level, "request",
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/health", healthHandler)
	e.POST("/auth/login", s.auth.LoginHandler)

	api := e.Group("/api/v1/flights")
	api.GET("/search", s.searchFlights)
	api.GET("/cheapest-dates", s.cheapestDates)
	api.POST("/multi-city", s.multiCity)
	api.GET("/flexible", s.flexibleDates)

	admin := e.Group("/admin", s.auth.JWTMiddleware())
	admin.GET("/providers", s.providerStatus)
	admin.POST("/providers/:name/reset", s.resetProvider)
	admin.GET("/providers/stream", s.streamProviderStatus)

	return e
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: msg})
}

// fail maps facade errors onto responses. Anything that is not a validation
// problem or a timeout is left to echo's error handler.
func fail(c echo.Context, err error) error {
	var ve service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation_error", Message: ve.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "timeout", Message: "search timed out"})
	default:
		return err
	}
}
