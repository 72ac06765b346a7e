package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/reporting"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

type account struct {
	password string
	user     *identity.User
}

type fakeUsers map[string]account

func (f fakeUsers) Authenticate(_ context.Context, username, password string) (*identity.User, error) {
	a, ok := f[username]
	if !ok || a.password != password || !a.user.IsActive {
		return nil, apperr.Invalid("non_field_errors", "Unable to log in with provided credentials.")
	}
	return a.user, nil
}

func (f fakeUsers) load(_ context.Context, id uuid.UUID) (*auth.Principal, error) {
	for _, a := range f {
		if a.user.ID == id {
			return a.user.Principal(), nil
		}
	}
	return nil, auth.ErrUnknownPrincipal
}

type fakePatients []*patient.Patient

func (f fakePatients) List(_ context.Context, _ patient.ListFilter, limit, offset int) ([]*patient.Patient, int, error) {
	if offset >= len(f) {
		return nil, len(f), nil
	}
	end := offset + limit
	if end > len(f) {
		end = len(f)
	}
	return f[offset:end], len(f), nil
}

type fakeAppointments []*appointment.Appointment

func (f fakeAppointments) Today(context.Context, int) ([]*appointment.Appointment, error) {
	return f, nil
}

type fakeReports struct{}

func (fakeReports) Dashboard(context.Context) (*reporting.Dashboard, error) {
	return &reporting.Dashboard{
		TotalPatients: 8, AdmittedPatients: 5, TodayAppointments: 1, PendingBills: 2,
		TodayRevenue: decimal.NewFromInt(700), MonthRevenue: decimal.NewFromInt(12500),
	}, nil
}

func (fakeReports) DailyRevenue(_ context.Context, days int) ([]reporting.Point, error) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	return reporting.DailySeries(now, days, map[string]decimal.Decimal{"2024-03-10": decimal.NewFromInt(700)}), nil
}

func (fakeReports) MonthlyRevenue(context.Context) ([]reporting.Point, error) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	return reporting.MonthlySeries(now, reporting.Months, map[string]decimal.Decimal{"2024-03": decimal.NewFromInt(12500)}), nil
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	users := fakeUsers{
		"admin": {password: "admin123", user: &identity.User{ID: uuid.New(), Username: "admin", Role: auth.RoleAdmin, IsActive: true}},
		"reception1": {password: "recept123", user: &identity.User{
			ID: uuid.New(), Username: "reception1", FirstName: "Mary", LastName: "Jones", Role: auth.RoleReceptionist, IsActive: true,
		}},
	}
	patients := fakePatients{{
		ID: uuid.New(), PatientID: "P2024030001", FirstName: "Anita", LastName: "Sharma",
		Age: 42, Gender: "F", IsAdmitted: true, EntryDatetime: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
	}}
	appts := fakeAppointments{{ID: uuid.New(), AppointmentID: "APT2024030001", AppointmentTime: "10:30",
		PatientName: "Anita Sharma", DoctorName: "Dr. John Smith", AppointmentType: "consultation", Status: "pending"}}

	r, err := NewRenderer()
	require.NoError(t, err)
	e := echo.New()
	e.Renderer = r
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())

	sessions := auth.NewSessionManager([]byte(strings.Repeat("k", 32)), time.Hour, false)
	NewHandler(users, sessions, patients, appts, fakeReports{}, "City General Hospital", zerolog.Nop()).
		RegisterRoutes(e, users.load)
	return e
}

func do(e *echo.Echo, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	c := cookie(rec, "hms_flash")
	require.NotNil(t, c, "no flash cookie")
	v, err := url.QueryUnescape(c.Value)
	require.NoError(t, err)
	return v
}

func login(t *testing.T, e *echo.Echo, username, password string) *http.Cookie {
	t.Helper()
	rec := do(e, http.MethodPost, "/auth/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	c := cookie(rec, auth.SessionCookie)
	require.NotNil(t, c)
	return c
}

func TestAnonymousRedirectsToLogin(t *testing.T) {
	e := newTestServer(t)
	rec := do(e, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fdashboard", rec.Header().Get(echo.HeaderLocation))
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestServer(t)
	rec := do(e, http.MethodPost, "/auth/login", url.Values{"username": {"reception1"}, "password": {"nope"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")
	assert.Contains(t, rec.Body.String(), `value="reception1"`)
	assert.Nil(t, cookie(rec, auth.SessionCookie))
}

func TestLogin_WelcomeAndNext(t *testing.T) {
	e := newTestServer(t)
	rec := do(e, http.MethodPost, "/auth/login", url.Values{
		"username": {"reception1"}, "password": {"recept123"}, "next": {"/patients"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/patients", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "success|Welcome back, Mary Jones!", flashOf(t, rec))

	session := cookie(rec, auth.SessionCookie)
	require.NotNil(t, session)
	page := do(e, http.MethodGet, "/dashboard", nil, session, cookie(rec, "hms_flash"))
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	assert.Contains(t, body, "Welcome back, Mary Jones!")
	assert.Contains(t, body, "APT2024030001")
	assert.Contains(t, body, "12500.00")
	assert.NotContains(t, body, `href="/reports"`)
}

func TestPatientsPage(t *testing.T) {
	e := newTestServer(t)
	session := login(t, e, "reception1", "recept123")

	rec := do(e, http.MethodGet, "/patients?q=anita", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "P2024030001")
	assert.Contains(t, rec.Body.String(), "Anita Sharma")
}

func TestReports_AdminOnly(t *testing.T) {
	e := newTestServer(t)

	desk := login(t, e, "reception1", "recept123")
	rec := do(e, http.MethodGet, "/reports", nil, desk)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "error|Access denied. Admin privileges required.", flashOf(t, rec))

	admin := login(t, e, "admin", "admin123")
	rec = do(e, http.MethodGet, "/reports", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "2023-04")
	assert.Contains(t, body, "2024-03-10")
	assert.Contains(t, body, "700.00")
}

func TestLogout(t *testing.T) {
	e := newTestServer(t)
	session := login(t, e, "admin", "admin123")

	rec := do(e, http.MethodGet, "/auth/logout", nil, session)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "info|You have been logged out.", flashOf(t, rec))
	cleared := cookie(rec, auth.SessionCookie)
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0)
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/patients?q=a", safeNext("/patients?q=a"))
	assert.Equal(t, "/dashboard", safeNext(""))
	assert.Equal(t, "/dashboard", safeNext("https://evil.example"))
	assert.Equal(t, "/dashboard", safeNext("//evil.example"))
}
