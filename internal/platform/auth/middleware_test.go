package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/platform/apperr"
)

func staticLoader(users map[uuid.UUID]*Principal) PrincipalLoader {
	return func(_ context.Context, id uuid.UUID) (*Principal, error) {
		p, ok := users[id]
		if !ok {
			return nil, ErrUnknownPrincipal
		}
		return p, nil
	}
}

func principalHandler(t *testing.T, want Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFromContext(c.Request().Context())
		require.True(t, ok, "expected principal in context")
		assert.Equal(t, want, p.Role)
		return c.NoContent(http.StatusNoContent)
	}
}

func TestTokenMiddleware_ValidToken(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	id := uuid.New()
	load := staticLoader(map[uuid.UUID]*Principal{id: {UserID: id, Username: "dr_smith", Role: RoleDoctor, Active: true}})
	tok, _, _ := store.Issue(context.Background(), id)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/mine", nil)
	req.Header.Set("Authorization", "Token "+tok)
	rec := httptest.NewRecorder()

	err := TokenMiddleware(store, load, nil)(principalHandler(t, RoleDoctor))(e.NewContext(req, rec))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTokenMiddleware_Rejects(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	active, inactive := uuid.New(), uuid.New()
	load := staticLoader(map[uuid.UUID]*Principal{
		active:   {UserID: active, Role: RoleAdmin, Active: true},
		inactive: {UserID: inactive, Role: RoleAdmin, Active: false},
	})
	inactiveTok, _, _ := store.Issue(context.Background(), inactive)
	deletedTok, _, _ := store.Issue(context.Background(), uuid.New())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"unknown token", "Bearer 00ff"},
		{"inactive user", "Bearer " + inactiveTok},
		{"deleted user", "Bearer " + deletedTok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			err := TokenMiddleware(store, load, nil)(okHandler)(e.NewContext(req, httptest.NewRecorder()))
			ae, ok := apperr.As(err)
			require.True(t, ok, "expected apperr.Error, got %v", err)
			assert.Equal(t, http.StatusUnauthorized, ae.Status)
		})
	}
}

func TestTokenMiddleware_LoaderFailureIsNotUnauthorized(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	tok, _, _ := store.Issue(context.Background(), uuid.New())
	outage := errors.New("connection refused")
	load := func(context.Context, uuid.UUID) (*Principal, error) { return nil, outage }

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	err := TokenMiddleware(store, load, nil)(okHandler)(e.NewContext(req, httptest.NewRecorder()))
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	_, isAppErr := apperr.As(err)
	assert.False(t, isAppErr)
}

func TestTokenMiddleware_SkipsPublicPaths(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	e := echo.New()
	called := false
	e.GET("/health", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}, TokenMiddleware(store, staticLoader(nil), AuthSkipper))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/dashboard", nil)
	rec := httptest.NewRecorder()

	err := DevAuthMiddleware(nil)(principalHandler(t, RoleAdmin))(e.NewContext(req, rec))
	require.NoError(t, err)
	assert.Nil(t, UserIDFromContext(req.Context()))
}

func TestDevAuthMiddleware_ValidatesPresentedToken(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	id := uuid.New()
	load := staticLoader(map[uuid.UUID]*Principal{id: {UserID: id, Role: RoleReceptionist, Active: true}})
	tok, _, _ := store.Issue(context.Background(), id)
	mw := DevAuthMiddleware(TokenMiddleware(store, load, nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	require.NoError(t, mw(principalHandler(t, RoleReceptionist))(e.NewContext(req, httptest.NewRecorder())))

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	err := mw(okHandler)(e.NewContext(bad, httptest.NewRecorder()))
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer abc123")
	tok, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc123", tok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = BearerToken(req)
	assert.False(t, ok)
}
