package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const SessionCookie = "hms_session"

// SessionClaims is the payload of the web session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// SessionManager signs and verifies HS256 session cookies for the web pages.
type SessionManager struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionManager(key []byte, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{key: key, ttl: ttl, secure: secure, now: time.Now}
}

// Issue signs a session for p.
func (m *SessionManager) Issue(p Principal) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Username: p.Username,
		Role:     p.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a session token and returns its user id.
func (m *SessionManager) Parse(token string) (uuid.UUID, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid session")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session subject: %w", err)
	}
	return id, nil
}

// Login sets the session cookie for p.
func (m *SessionManager) Login(c echo.Context, p Principal) error {
	tok, exp, err := m.Issue(p)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie.
func (m *SessionManager) Logout(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware attaches the session's principal to the request when the cookie
// is valid and the user is still active. Bad cookies and deleted or inactive
// users continue anonymously; RequireRoleWeb decides what they see. Loader
// failures are returned.
func (m *SessionManager) Middleware(load PrincipalLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				return next(c)
			}
			userID, err := m.Parse(cookie.Value)
			if err != nil {
				m.Logout(c)
				return next(c)
			}
			ctx := c.Request().Context()
			p, err := load(ctx, userID)
			if err != nil && !errors.Is(err, ErrUnknownPrincipal) {
				return fmt.Errorf("load session principal: %w", err)
			}
			if err != nil || !p.Active {
				m.Logout(c)
				return next(c)
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}
