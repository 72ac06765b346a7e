package patient

import (
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/patients", auth.RequireRole(auth.Staff...))
	staff.GET("", h.ListPatients)
	staff.GET("/search", h.SearchPatients)
	staff.GET("/:id", h.GetPatient)

	desk := api.Group("/patients", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("", h.CreatePatient)
	desk.PUT("/:id", h.UpdatePatient)
	desk.POST("/:id/discharge", h.DischargePatient)

	admin := api.Group("/patients", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/:id", h.DeletePatient)

	clinical := api.Group("/patients/:id", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	clinical.GET("/vitals", h.ListVitals)
	clinical.POST("/vitals", h.CreateVitals)
	clinical.GET("/documents", h.ListDocuments)
	clinical.POST("/documents", h.UploadDocument)
	clinical.GET("/documents/:doc/download", h.DownloadDocument)
	clinical.DELETE("/documents/:doc", h.DeleteDocument)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid %s", name)
	}
	return id, nil
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Query: c.QueryParam("q"), Gender: c.QueryParam("gender")}
	if v := c.QueryParam("is_admitted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.Invalid("is_admitted", "must be true or false")
		}
		f.Admitted = &b
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	items, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Register(ctx, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	p, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DischargePatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Vitals --

func (h *Handler) ListVitals(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListVitals(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateVitals(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var v Vitals
	if err := c.Bind(&v); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	ctx := c.Request().Context()
	out, err := h.svc.RecordVitals(ctx, id, &v, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

// -- Documents --

func (h *Handler) ListDocuments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDocuments(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) UploadDocument(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Invalid("file", "This field is required.")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ctx := c.Request().Context()
	d, err := h.svc.UploadDocument(ctx, id, DocumentUpload{
		Title:        c.FormValue("title"),
		DocumentType: c.FormValue("document_type"),
		FileName:     fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		Body:         f,
	}, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	docID, err := parseID(c, "doc")
	if err != nil {
		return err
	}
	d, rc, err := h.svc.OpenDocument(c.Request().Context(), id, docID)
	if err != nil {
		return err
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", path.Base(d.StorageKey)))
	return c.Stream(http.StatusOK, d.ContentType, rc)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	docID, err := parseID(c, "doc")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveDocument(c.Request().Context(), id, docID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
