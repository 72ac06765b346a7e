package reporting

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("/revenue/daily", h.DailyRevenue)
	g.GET("/revenue/monthly", h.MonthlyRevenue)
	g.GET("/dashboard", h.Dashboard)
}

func (h *Handler) DailyRevenue(c echo.Context) error {
	days := DefaultDays
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperr.Invalid("days", "must be an integer")
		}
		days = n
	}
	points, err := h.svc.DailyRevenue(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return h.render(c, Daily, points)
}

func (h *Handler) MonthlyRevenue(c echo.Context) error {
	points, err := h.svc.MonthlyRevenue(c.Request().Context())
	if err != nil {
		return err
	}
	return h.render(c, Monthly, points)
}

// render writes points as JSON, or as a workbook when format=xlsx.
func (h *Handler) render(c echo.Context, granularity string, points []Point) error {
	switch c.QueryParam("format") {
	case "", "json":
		return c.JSON(http.StatusOK, points)
	case "xlsx":
		var buf bytes.Buffer
		if err := WriteWorkbook(&buf, "Revenue ("+granularity+")", points); err != nil {
			return err
		}
		name := fmt.Sprintf("revenue-%s-%s.xlsx", granularity, points[len(points)-1].Period)
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
	default:
		return apperr.Invalid("format", "must be json or xlsx")
	}
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
