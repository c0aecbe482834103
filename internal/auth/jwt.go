package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/you/go-flightshark/internal/config"
)

const tokenTTL = time.Hour

// subjectKey is where JWTMiddleware leaves the token subject in echo.Context.
const subjectKey = "auth.subject"

var ErrInvalidCredentials = errors.New("invalid credentials")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type Authenticator struct {
	secret   []byte
	user     string
	password string
	now      func() time.Time
}

func New(cfg *config.Config) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		user:     cfg.JWTUser,
		password: cfg.JWTPassword,
		now:      time.Now,
	}
}

func (a *Authenticator) IssueToken(username string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.secret)
}

// Verify checks signature and expiry and returns the token subject.
func (a *Authenticator) Verify(tok string) (string, error) {
	t, err := jwt.Parse(tok, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	return t.Claims.GetSubject()
}

// JWTMiddleware accepts a bearer header, or a token query parameter for
// clients such as browsers opening a websocket.
func (a *Authenticator) JWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authH := c.Request().Header.Get(echo.HeaderAuthorization)
			if authH == "" {
				if t := c.QueryParam("token"); t != "" {
					authH = "Bearer " + t
				}
			}
			if !strings.HasPrefix(authH, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			sub, err := a.Verify(strings.TrimPrefix(authH, "Bearer "))
			if err != nil {
				slog.Info("rejected token", "path", c.Path(), "err", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(subjectKey, sub)
			return next(c)
		}
	}
}

// Subject returns the authenticated user set by JWTMiddleware.
func Subject(c echo.Context) string {
	s, _ := c.Get(subjectKey).(string)
	return s
}

func (a *Authenticator) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad json")
	}
	if req.Username != a.user || req.Password != a.password {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	}
	tok, err := a.IssueToken(req.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Token: tok, ExpiresIn: int(tokenTTL.Seconds())})
}
