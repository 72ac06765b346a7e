package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated user attached to a request.
type Principal struct {
	UserID   uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Active   bool      `json:"is_active"`
}

// DevPrincipal is the identity assumed by credential-less requests in
// development mode.
var DevPrincipal = Principal{Username: "dev-user", Role: RoleAdmin, Active: true}

// ErrUnknownPrincipal is returned by a PrincipalLoader when the user no
// longer exists.
var ErrUnknownPrincipal = errors.New("unknown principal")

// PrincipalLoader resolves a user id to its current Principal. It is called
// on every authenticated request so role changes and deactivation apply
// immediately. Loaders return ErrUnknownPrincipal for deleted users; any
// other error is treated as a server failure.
type PrincipalLoader func(ctx context.Context, userID uuid.UUID) (*Principal, error)

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// UserIDFromContext returns the authenticated user id, or nil when the
// request is anonymous or runs as the development principal.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}

// RoleFromContext returns the principal's role, or "".
func RoleFromContext(ctx context.Context) Role {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Role
	}
	return ""
}

// BearerToken extracts the credential from "Authorization: Bearer <t>" or
// "Authorization: Token <t>".
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "bearer") && !strings.EqualFold(parts[0], "token") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// TokenMiddleware authenticates API requests with opaque tokens from store.
// Requests the skipper accepts pass through anonymously.
func TokenMiddleware(store TokenStore, load PrincipalLoader, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			tok, ok := BearerToken(c.Request())
			if !ok {
				return apperr.Unauthorized("authentication credentials were not provided")
			}
			ctx := c.Request().Context()
			userID, err := store.Lookup(ctx, tok)
			if err != nil {
				if errors.Is(err, ErrTokenNotFound) {
					return apperr.Unauthorized("invalid or expired token")
				}
				return err
			}
			p, err := load(ctx, userID)
			if err != nil {
				if errors.Is(err, ErrUnknownPrincipal) {
					return apperr.Unauthorized("user inactive or deleted")
				}
				return fmt.Errorf("load principal: %w", err)
			}
			if !p.Active {
				return apperr.Unauthorized("user inactive or deleted")
			}

			c.Set("auth_token", tok)
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without an Authorization header act as
// DevPrincipal. Requests carrying a token are still authenticated by
// tokenMW when it is non-nil.
func DevAuthMiddleware(tokenMW echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		authed := next
		if tokenMW != nil {
			authed = tokenMW(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				p := DevPrincipal
				c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), &p)))
				return next(c)
			}
			return authed(c)
		}
	}
}

// LoginURL returns the login page address that returns to next afterwards.
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return "/auth/login"
	}
	return "/auth/login?next=" + url.QueryEscape(next)
}
