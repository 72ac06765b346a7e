package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
)

// Role is a staff role. Every user has exactly one.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
)

// Staff is every role; use it for endpoints any signed-in user may reach.
var Staff = []Role{RoleAdmin, RoleDoctor, RoleReceptionist}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleDoctor, RoleReceptionist:
		return r, true
	}
	return "", false
}

// Title returns the display form, e.g. "Receptionist".
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Allows is the single access policy: actor is permitted when it holds one of
// the required roles, and admin is permitted everywhere.
func Allows(actor Role, required ...Role) bool {
	if actor == RoleAdmin {
		return true
	}
	for _, r := range required {
		if actor == r {
			return true
		}
	}
	return false
}

// DeniedMessage is the notice shown when a role check fails.
func DeniedMessage(required ...Role) string {
	var names []string
	for _, r := range required {
		if r == RoleAdmin && len(required) > 1 {
			continue
		}
		names = append(names, r.Title())
	}
	if len(names) == 0 {
		return "Access denied."
	}
	return "Access denied. " + strings.Join(names, " or ") + " privileges required."
}

// RequireRole rejects API requests whose principal fails Allows. Requests
// without a principal get 401.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthorized("authentication credentials were not provided")
			}
			if !Allows(p.Role, roles...) {
				return apperr.Forbidden(DeniedMessage(roles...))
			}
			return next(c)
		}
	}
}

// RequireRoleWeb is RequireRole for server-rendered pages: anonymous visitors
// are sent to the login page and denied users back to the dashboard with a
// flash notice.
func RequireRoleWeb(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return c.Redirect(http.StatusFound, LoginURL(c.Request().URL.RequestURI()))
			}
			if !Allows(p.Role, roles...) {
				SetFlash(c, FlashError, DeniedMessage(roles...))
				return c.Redirect(http.StatusFound, "/dashboard")
			}
			return next(c)
		}
	}
}
