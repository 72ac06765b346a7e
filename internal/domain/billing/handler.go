package billing

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc      *Service
	hospital string
}

// NewHandler returns the billing API. hospital is printed on invoices.
func NewHandler(svc *Service, hospital string) *Handler {
	return &Handler{svc: svc, hospital: hospital}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := api.Group("/bills", auth.RequireRole(auth.RoleReceptionist))
	desk.GET("", h.ListBills)
	desk.POST("", h.CreateBill)
	desk.GET("/:id", h.GetBill)
	desk.PUT("/:id", h.UpdateBill)
	desk.POST("/:id/items", h.AddItem)
	desk.DELETE("/:id/items/:item", h.DeleteItem)
	desk.GET("/:id/payments", h.ListPayments)
	desk.POST("/:id/payments", h.RecordPayment)
	desk.GET("/:id/invoice.pdf", h.Invoice)

	admin := api.Group("/bills", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/:id", h.DeleteBill)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid %s", name)
	}
	return id, nil
}

// filterFromQuery reads status, patient_id, q and an inclusive from/to date
// range.
func filterFromQuery(c echo.Context) (ListFilter, error) {
	f := ListFilter{Status: c.QueryParam("status"), Query: c.QueryParam("q")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Invalid("patient_id", "must be a UUID")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, apperr.Invalid("from", "must be YYYY-MM-DD")
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, apperr.Invalid("to", "must be YYYY-MM-DD")
		}
		d = d.AddDate(0, 0, 1)
		f.To = &d
	}
	return f, nil
}

func (h *Handler) ListBills(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateBill(c echo.Context) error {
	var req BillRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	ctx := c.Request().Context()
	d, err := h.svc.CreateBill(ctx, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateBill(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req BillRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	d, err := h.svc.UpdateBill(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteBill(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBill(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	it, err := h.svc.AddItem(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) DeleteItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := parseID(c, "item")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteItem(c.Request().Context(), id, itemID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	payments, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	ctx := c.Request().Context()
	d, err := h.svc.RecordPayment(ctx, id, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Invoice(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := RenderInvoice(&buf, h.hospital, d); err != nil {
		return fmt.Errorf("render invoice %s: %w", d.BillNumber, err)
	}
	name := strings.ToLower(d.BillNumber) + ".pdf"
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", name))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}
