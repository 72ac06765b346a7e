package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		actor    Role
		required []Role
		want     bool
	}{
		{RoleAdmin, []Role{RoleAdmin}, true},
		{RoleAdmin, []Role{RoleDoctor}, true},
		{RoleAdmin, []Role{RoleReceptionist}, true},
		{RoleDoctor, []Role{RoleDoctor}, true},
		{RoleDoctor, []Role{RoleAdmin}, false},
		{RoleDoctor, []Role{RoleReceptionist}, false},
		{RoleDoctor, []Role{RoleDoctor, RoleReceptionist}, true},
		{RoleReceptionist, []Role{RoleReceptionist}, true},
		{RoleReceptionist, []Role{RoleDoctor}, false},
		{RoleReceptionist, Staff, true},
		{"", Staff, false},
		{RoleDoctor, nil, false},
	}
	for _, tt := range tests {
		if got := Allows(tt.actor, tt.required...); got != tt.want {
			t.Errorf("Allows(%q, %v) = %v, want %v", tt.actor, tt.required, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "doctor", "receptionist"} {
		if _, ok := ParseRole(s); !ok {
			t.Errorf("expected %q to parse", s)
		}
	}
	for _, s := range []string{"", "Admin", "nurse", "physician"} {
		if _, ok := ParseRole(s); ok {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestDeniedMessage(t *testing.T) {
	tests := []struct {
		roles []Role
		want  string
	}{
		{[]Role{RoleAdmin}, "Access denied. Admin privileges required."},
		{[]Role{RoleDoctor}, "Access denied. Doctor privileges required."},
		{[]Role{RoleDoctor, RoleReceptionist}, "Access denied. Doctor or Receptionist privileges required."},
		{nil, "Access denied."},
	}
	for _, tt := range tests {
		if got := DeniedMessage(tt.roles...); got != tt.want {
			t.Errorf("DeniedMessage(%v) = %q, want %q", tt.roles, got, tt.want)
		}
	}
}

func contextWithRole(role Role) context.Context {
	return WithPrincipal(context.Background(), &Principal{UserID: uuid.New(), Username: "u", Role: role, Active: true})
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRole(RoleReceptionist))
	rec := httptest.NewRecorder()

	err := RequireRole(RoleReceptionist)(okHandler)(e.NewContext(req, rec))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminPassesEverything(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRole(RoleAdmin))
	rec := httptest.NewRecorder()

	if err := RequireRole(RoleDoctor)(okHandler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRole(RoleDoctor))
	rec := httptest.NewRecorder()

	err := RequireRole(RoleAdmin)(okHandler)(e.NewContext(req, rec))
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error, got %v", err)
	}
	if ae.Status != http.StatusForbidden || ae.Code != apperr.CodeForbidden {
		t.Errorf("expected 403 %s, got %d %s", apperr.CodeForbidden, ae.Status, ae.Code)
	}
	if ae.Message != "Access denied. Admin privileges required." {
		t.Errorf("unexpected message %q", ae.Message)
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	err := RequireRole(Staff...)(okHandler)(e.NewContext(req, rec))
	ae, ok := apperr.As(err)
	if !ok || ae.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireRoleWeb_RedirectsAnonymousToLogin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports?range=daily", nil)
	rec := httptest.NewRecorder()

	if err := RequireRoleWeb(RoleAdmin)(okHandler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/auth/login?next=") || !strings.Contains(loc, "%2Freports") {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestRequireRoleWeb_DeniedFlashesAndRedirects(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports", nil).WithContext(contextWithRole(RoleReceptionist))
	rec := httptest.NewRecorder()

	if err := RequireRoleWeb(RoleAdmin)(okHandler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	cookies := rec.Result().Cookies()
	var flash *http.Cookie
	for _, ck := range cookies {
		if ck.Name == flashCookie {
			flash = ck
		}
	}
	if flash == nil {
		t.Fatal("expected flash cookie")
	}

	next := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	next.AddCookie(flash)
	f := PopFlash(e.NewContext(next, httptest.NewRecorder()))
	if f == nil || f.Level != FlashError || f.Message != "Access denied. Admin privileges required." {
		t.Errorf("unexpected flash %+v", f)
	}
}

func TestLoginURL(t *testing.T) {
	if got := LoginURL("/"); got != "/auth/login" {
		t.Errorf("LoginURL(/) = %q", got)
	}
	if got := LoginURL("/patients/1"); got != "/auth/login?next=%2Fpatients%2F1" {
		t.Errorf("LoginURL(/patients/1) = %q", got)
	}
}
