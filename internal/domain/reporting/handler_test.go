package reporting

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

func newTestServer(svc *Service, role auth.Role) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	p := &auth.Principal{UserID: uuid.New(), Role: role, Active: true}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_DailyDefaultWindow(t *testing.T) {
	svc, _ := newTestService(time.UTC)
	e := newTestServer(svc, auth.RoleAdmin)

	rec := get(e, "/api/v1/reports/revenue/daily")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var points []Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, DefaultDays)
	assert.Equal(t, "2024-03-10", points[DefaultDays-1].Period)
}

func TestHandler_MonthlyWorkbook(t *testing.T) {
	svc, _ := newTestService(time.UTC)
	e := newTestServer(svc, auth.RoleAdmin)

	rec := get(e, "/api/v1/reports/revenue/monthly?format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxMIME, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "revenue-monthly-2024-03.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, Months+2)
	assert.Equal(t, []string{"Period", "Revenue"}, rows[0])
	assert.Equal(t, "2023-04", rows[1][0])
	assert.Equal(t, "2024-03", rows[Months][0])
	assert.Equal(t, "Total", rows[Months+1][0])
}

func TestHandler_BadParams(t *testing.T) {
	svc, _ := newTestService(time.UTC)
	e := newTestServer(svc, auth.RoleAdmin)

	for _, target := range []string{
		"/api/v1/reports/revenue/daily?days=abc",
		"/api/v1/reports/revenue/daily?days=400",
		"/api/v1/reports/revenue/monthly?format=csv",
	} {
		rec := get(e, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandler_AdminOnly(t *testing.T) {
	svc, _ := newTestService(time.UTC)
	for _, role := range []auth.Role{auth.RoleReceptionist, auth.RoleDoctor} {
		rec := get(newTestServer(svc, role), "/api/v1/reports/dashboard")
		assert.Equal(t, http.StatusForbidden, rec.Code, role)
	}

	rec := get(newTestServer(svc, auth.RoleAdmin), "/api/v1/reports/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var d Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 8, d.TotalPatients)
}
