package appointment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

func newTestServer(f *fixture, p *auth.Principal) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func call(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_BookAndConfirm(t *testing.T) {
	f := newFixture()
	desk := newTestServer(f, &auth.Principal{UserID: uuid.New(), Role: auth.RoleReceptionist})

	body := `{"patient_id":"` + f.patient.ID.String() + `","doctor_id":"` + f.doctor.ID.String() +
		`","appointment_date":"2024-03-06","appointment_time":"11:00","appointment_type":"checkup"}`
	rec := call(desk, http.MethodPost, "/api/v1/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var a Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "APT2024030001", a.AppointmentID)

	rec = call(desk, http.MethodPost, "/api/v1/appointments/"+a.ID.String()+"/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(desk, http.MethodDelete, "/api/v1/appointments/"+a.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_Mine(t *testing.T) {
	f := newFixture()
	f.book(t)

	doc := newTestServer(f, &auth.Principal{UserID: f.doctorUser, Role: auth.RoleDoctor})
	rec := call(doc, http.MethodGet, "/api/v1/appointments/mine", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	desk := newTestServer(f, &auth.Principal{UserID: uuid.New(), Role: auth.RoleReceptionist})
	rec = call(desk, http.MethodGet, "/api/v1/appointments/mine", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_List_BadFilter(t *testing.T) {
	f := newFixture()
	e := newTestServer(f, &auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor})
	rec := call(e, http.MethodGet, "/api/v1/appointments?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(e, http.MethodGet, "/api/v1/appointments?doctor_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
