// Package web serves the staff-facing HTML pages: sign-in, the dashboard,
// the patient list and the revenue report.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/reporting"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

const (
	pageSize        = 25
	todayListLimit  = 50
	reportDailyDays = reporting.DefaultDays
)

type Users interface {
	Authenticate(ctx context.Context, username, password string) (*identity.User, error)
}

type Patients interface {
	List(ctx context.Context, f patient.ListFilter, limit, offset int) ([]*patient.Patient, int, error)
}

type Appointments interface {
	Today(ctx context.Context, limit int) ([]*appointment.Appointment, error)
}

type Reports interface {
	Dashboard(ctx context.Context) (*reporting.Dashboard, error)
	DailyRevenue(ctx context.Context, days int) ([]reporting.Point, error)
	MonthlyRevenue(ctx context.Context) ([]reporting.Point, error)
}

type Handler struct {
	users        Users
	sessions     *auth.SessionManager
	patients     Patients
	appointments Appointments
	reports      Reports
	hospital     string
	logger       zerolog.Logger
}

func NewHandler(users Users, sessions *auth.SessionManager, patients Patients, appointments Appointments,
	reports Reports, hospital string, logger zerolog.Logger) *Handler {
	return &Handler{
		users: users, sessions: sessions, patients: patients, appointments: appointments,
		reports: reports, hospital: hospital, logger: logger,
	}
}

// page is the data every template receives.
type page struct {
	Title    string
	Hospital string
	User     *auth.Principal
	Flash    *auth.Flash
	Data     interface{}
}

func (h *Handler) render(c echo.Context, status int, name, title string, data interface{}) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return c.Render(status, name, page{
		Title:    title,
		Hospital: h.hospital,
		User:     p,
		Flash:    auth.PopFlash(c),
		Data:     data,
	})
}

// RegisterRoutes mounts the pages on e. The session middleware attaches the
// principal; RequireRoleWeb decides who may see each page.
func (h *Handler) RegisterRoutes(e *echo.Echo, load auth.PrincipalLoader) {
	sess := h.sessions.Middleware(load)
	staff := auth.RequireRoleWeb(auth.Staff...)

	e.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusFound, "/dashboard") })
	e.GET("/auth/login", h.LoginForm, sess)
	e.POST("/auth/login", h.Login, sess)
	e.GET("/auth/logout", h.Logout, sess)
	e.GET("/dashboard", h.Dashboard, sess, staff)
	e.GET("/patients", h.Patients, sess, staff)
	e.GET("/reports", h.Reports, sess, auth.RequireRoleWeb(auth.RoleAdmin))
}

type loginData struct {
	Username string
	Next     string
	Error    string
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}

func (h *Handler) LoginForm(c echo.Context) error {
	if _, ok := auth.PrincipalFromContext(c.Request().Context()); ok {
		return c.Redirect(http.StatusFound, "/dashboard")
	}
	return h.render(c, http.StatusOK, "login.html", "Sign in", loginData{Next: c.QueryParam("next")})
}

func (h *Handler) Login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	next := c.FormValue("next")

	u, err := h.users.Authenticate(c.Request().Context(), username, password)
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			return err
		}
		h.logger.Info().Str("username", username).Msg("web login failed")
		return h.render(c, http.StatusOK, "login.html", "Sign in", loginData{
			Username: username,
			Next:     next,
			Error:    "Invalid username or password.",
		})
	}

	if err := h.sessions.Login(c, *u.Principal()); err != nil {
		return err
	}
	auth.SetFlash(c, auth.FlashSuccess, "Welcome back, "+u.FullName()+"!")
	h.logger.Info().Str("username", u.Username).Msg("web login")
	return c.Redirect(http.StatusFound, safeNext(next))
}

func (h *Handler) Logout(c echo.Context) error {
	h.sessions.Logout(c)
	auth.SetFlash(c, auth.FlashInfo, "You have been logged out.")
	return c.Redirect(http.StatusFound, "/auth/login")
}

type dashboardData struct {
	Stats        *reporting.Dashboard
	Appointments []*appointment.Appointment
}

func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := h.reports.Dashboard(ctx)
	if err != nil {
		return err
	}
	today, err := h.appointments.Today(ctx, todayListLimit)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "dashboard.html", "Dashboard", dashboardData{Stats: stats, Appointments: today})
}

type patientsData struct {
	Query      string
	Patients   []*patient.Patient
	Total      int
	Prev, Next int
}

func (h *Handler) Patients(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	pg := pagination.FromPage(c, pageSize)
	items, total, err := h.patients.List(c.Request().Context(), patient.ListFilter{Query: q}, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	data := patientsData{Query: q, Patients: items, Total: total, Prev: pg.PrevPage(), Next: pg.NextPage(total)}
	return h.render(c, http.StatusOK, "patients.html", "Patients", data)
}

type reportsData struct {
	Daily        []reporting.Point
	Monthly      []reporting.Point
	DailyTotal   decimal.Decimal
	MonthlyTotal decimal.Decimal
}

func (h *Handler) Reports(c echo.Context) error {
	ctx := c.Request().Context()
	daily, err := h.reports.DailyRevenue(ctx, reportDailyDays)
	if err != nil {
		return err
	}
	monthly, err := h.reports.MonthlyRevenue(ctx)
	if err != nil {
		return err
	}
	return h.render(c, http.StatusOK, "reports.html", "Reports", reportsData{
		Daily:        daily,
		Monthly:      monthly,
		DailyTotal:   reporting.Total(daily),
		MonthlyTotal: reporting.Total(monthly),
	})
}
