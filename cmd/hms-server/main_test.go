package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/telemetry"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, newLogger(&config.Config{Env: "production", LogLevel: "warn"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger(&config.Config{Env: "production", LogLevel: "loud"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger(&config.Config{Env: "production"}).GetLevel())
}

func TestSessionKey(t *testing.T) {
	secret := strings.Repeat("ab", 32)
	key, err := sessionKey(&config.Config{Env: "production", SessionSecret: secret}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.Equal(t, byte(0xab), key[0])

	a, err := sessionKey(&config.Config{Env: "development"}, zerolog.Nop())
	require.NoError(t, err)
	b, err := sessionKey(&config.Config{Env: "development"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	_, err = sessionKey(&config.Config{Env: "production"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = sessionKey(&config.Config{Env: "development", SessionSecret: "zz"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewTokenStore_MemoryInDevelopment(t *testing.T) {
	store, closeFn, err := newTokenStore(context.Background(), &config.Config{Env: "development", TokenTTL: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &auth.MemoryTokenStore{}, store)
}

func TestNewTokenStore_RequiresRedisOutsideDevelopment(t *testing.T) {
	_, _, err := newTokenStore(context.Background(), &config.Config{Env: "production", TokenTTL: time.Hour}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewTokenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Env: "production", RedisURL: "redis://" + mr.Addr() + "/0", TokenTTL: time.Hour}

	store, closeFn, err := newTokenStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	id := uuid.New()
	tok, _, err := store.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	got, err := store.Lookup(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestNewTokenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{Env: "production", RedisURL: "redis://" + addr + "/0", TokenTTL: time.Hour}
	_, _, err := newTokenStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func serve(e *echo.Echo, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInfraRoutes(t *testing.T) {
	metrics := telemetry.New()
	e := newEcho(&config.Config{Env: "development"}, zerolog.Nop(), metrics)
	registerInfra(e, fakePinger{}, metrics)

	rec := serve(e, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = serve(e, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hms_http_requests_total")
}

func TestInfraRoutes_DatabaseDown(t *testing.T) {
	metrics := telemetry.New()
	e := newEcho(&config.Config{Env: "development"}, zerolog.Nop(), metrics)
	registerInfra(e, fakePinger{err: errors.New("connection refused")}, metrics)

	rec := serve(e, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func newAPI(t *testing.T, cfg *config.Config) (*echo.Echo, auth.TokenStore, uuid.UUID) {
	t.Helper()
	store := auth.NewMemoryTokenStore(time.Hour)
	userID := uuid.New()
	load := func(_ context.Context, id uuid.UUID) (*auth.Principal, error) {
		if id != userID {
			return nil, errors.New("unknown user")
		}
		return &auth.Principal{UserID: id, Username: "reception1", Role: auth.RoleReceptionist, Active: true}, nil
	}

	e := newEcho(cfg, zerolog.Nop(), telemetry.New())
	api := e.Group("/api/v1", apiAuth(cfg, store, load))
	api.GET("/whoami", func(c echo.Context) error {
		p, ok := auth.PrincipalFromContext(c.Request().Context())
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, string(p.Role))
	})
	api.POST("/auth/token", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	return e, store, userID
}

func TestAPIAuth_DevelopmentDefaultsToAdmin(t *testing.T) {
	e, _, _ := newAPI(t, &config.Config{Env: "development"})

	rec := serve(e, http.MethodGet, "/api/v1/whoami", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestAPIAuth_TokenMode(t *testing.T) {
	e, store, userID := newAPI(t, &config.Config{Env: "production"})

	rec := serve(e, http.MethodGet, "/api/v1/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/auth/token", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	tok, _, err := store.Issue(context.Background(), userID)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/api/v1/whoami", http.Header{"Authorization": {"Bearer " + tok}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "receptionist", rec.Body.String())
}
