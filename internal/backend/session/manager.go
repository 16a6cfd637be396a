package session

import (
	"crypto/sha256"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/eggcount/internal/common"
)

const (
	CookieName = "eggcount_session"
	// LoginPath is where anonymous callers are sent
	LoginPath = "/"
)

// Manager ties the session store to a signed cookie and the shared login secret.
type Manager struct {
	store        Store
	codec        *securecookie.SecureCookie
	loginSecret  string
	secureCookie bool
}

// NewManager creates a manager; signingSecret signs the cookie, loginSecret gates login
func NewManager(store Store, signingSecret, loginSecret string, secureCookie bool) *Manager {
	hashKey := sha256.Sum256([]byte(signingSecret))
	codec := securecookie.New(hashKey[:], nil)
	// Session lifetime is owned by the store
	codec.MaxAge(0)

	return &Manager{
		store:        store,
		codec:        codec,
		loginSecret:  loginSecret,
		secureCookie: secureCookie,
	}
}

// Authenticate checks the secret and, on a match, starts a session for the caller
func (m *Manager) Authenticate(c echo.Context, secret string) (bool, error) {
	if !common.SecretsEqual(secret, m.loginSecret) {
		return false, nil
	}

	token, err := m.store.Create(c.Request().Context())
	if err != nil {
		return false, err
	}
	encoded, err := m.codec.Encode(CookieName, token)
	if err != nil {
		_ = m.store.Delete(c.Request().Context(), token)
		return false, err
	}

	c.SetCookie(m.cookie(encoded, 0))
	return true, nil
}

// IsAuthenticated reports whether the request carries a live session
func (m *Manager) IsAuthenticated(c echo.Context) bool {
	token, ok := m.token(c)
	if !ok {
		return false
	}
	exists, err := m.store.Exists(c.Request().Context(), token)
	if err != nil {
		slog.Error("session: failed to look up session", "error", err)
		return false
	}
	return exists
}

// Logout ends the caller's session, if any, and always clears the cookie
func (m *Manager) Logout(c echo.Context) error {
	var err error
	if token, ok := m.token(c); ok {
		err = m.store.Delete(c.Request().Context(), token)
	}
	c.SetCookie(m.cookie("", -1))
	return err
}

// RequireSession redirects anonymous callers to the login page
func (m *Manager) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !m.IsAuthenticated(c) {
			return c.Redirect(http.StatusFound, LoginPath)
		}
		return next(c)
	}
}

func (m *Manager) token(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var token string
	if err := m.codec.Decode(CookieName, cookie.Value, &token); err != nil {
		slog.Debug("session: rejected cookie", "error", err)
		return "", false
	}
	return token, token != ""
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
