package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/domain"
	"github.com/123123eeqweq/omocrm/session"
)

const (
	msgBadCredentials = "Неверный логин или пароль"
	msgUnauthorized   = "Unauthorized"

	userContextKey = "user"
)

// GateConfig configures authentication for the API.
type GateConfig struct {
	Policy       domain.AuthPolicy
	Login        string
	Password     string
	CookieName   string
	CookieSecure bool
}

// Gate checks credentials and guards board routes according to the auth policy.
type Gate struct {
	cfg      GateConfig
	sessions Sessions
}

// NewGate creates a Gate. sessions may be nil only for the client-flag policy.
func NewGate(cfg GateConfig, sessions Sessions) *Gate {
	if cfg.Policy == "" {
		cfg.Policy = domain.AuthServerSession
	}
	if cfg.Policy == domain.AuthServerSession && sessions == nil {
		panic("api: server-session policy requires a session store")
	}
	return &Gate{cfg: cfg, sessions: sessions}
}

// Policy reports the active auth policy.
func (g *Gate) Policy() domain.AuthPolicy {
	return g.cfg.Policy
}

// CheckCredentials compares against the configured pair. Empty values never match.
func (g *Gate) CheckCredentials(login, password string) bool {
	if login == "" || password == "" || g.cfg.Login == "" || g.cfg.Password == "" {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(g.cfg.Login)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.cfg.Password)) == 1
	return loginOK && passOK
}

func (g *Gate) serverSessions() bool {
	return g.cfg.Policy == domain.AuthServerSession
}

func (g *Gate) setCookie(c echo.Context, token string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
	})
}

func (g *Gate) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func (g *Gate) token(c echo.Context) string {
	ck, err := c.Cookie(g.cfg.CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

// resolve returns the session user for the request, or session.ErrInvalid.
func (g *Gate) resolve(c echo.Context) (string, error) {
	tok := g.token(c)
	if tok == "" {
		return "", session.ErrInvalid
	}
	rec, err := g.sessions.Resolve(c.Request().Context(), tok)
	if err != nil {
		return "", err
	}
	return rec.User, nil
}

// RequireSession rejects requests without a live session. Under the
// client-flag policy every request passes.
func (g *Gate) RequireSession(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !g.serverSessions() {
				return next(c)
			}
			user, err := g.resolve(c)
			if errors.Is(err, session.ErrInvalid) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthorized})
			}
			if err != nil {
				logger.WithError(err).Error("resolve session")
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to check session"})
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

func login(g *Gate, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		if !g.CheckCredentials(req.Login, req.Password) {
			logger.WithField("login", req.Login).Warn("login rejected")
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgBadCredentials})
		}
		if g.serverSessions() {
			ctx := c.Request().Context()
			if old := g.token(c); old != "" {
				if err := g.sessions.End(ctx, old); err != nil {
					logger.WithError(err).Warn("end previous session")
				}
			}
			token, _, err := g.sessions.Start(ctx, req.Login)
			if err != nil {
				logger.WithError(err).Error("start session")
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create session"})
			}
			g.setCookie(c, token, g.sessions.TTL())
		}
		return c.JSON(http.StatusOK, loginResponse{OK: true, User: req.Login})
	}
}

func me(g *Gate, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !g.serverSessions() {
			return c.JSON(http.StatusOK, meResponse{User: g.cfg.Login})
		}
		user, err := g.resolve(c)
		if errors.Is(err, session.ErrInvalid) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: msgUnauthorized})
		}
		if err != nil {
			logger.WithError(err).Error("resolve session")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to check session"})
		}
		return c.JSON(http.StatusOK, meResponse{User: user})
	}
}

func logout(g *Gate, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if g.serverSessions() {
			if tok := g.token(c); tok != "" {
				if err := g.sessions.End(c.Request().Context(), tok); err != nil {
					logger.WithError(err).Warn("end session")
				}
			}
		}
		g.clearCookie(c)
		return c.JSON(http.StatusOK, okResponse{OK: true})
	}
}
