package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/export"
	"peerpulse-backend/internal/models"

	"github.com/labstack/echo/v4"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminHandler struct {
	common.ServerState
}

func NewAdminHandler(state common.ServerState) *AdminHandler {
	return &AdminHandler{ServerState: state}
}

type DepartmentRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type RoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=Employee Admin"`
}

// RequireAdmin rejects callers whose role is not Admin. It must run after
// the JWT middleware.
func (h *AdminHandler) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
		if !isAuthenticated {
			return c.String(http.StatusUnauthorized, "Unauthorized request")
		}
		if !user.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
		}
		return next(c)
	}
}

func (h *AdminHandler) Dashboard(c echo.Context) error {
	d, err := h.Engine.AdminDashboard(c.Request().Context(), quarterParam(c, &h.ServerState))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Refresh starts a recompute of the quarter's insights and returns at once.
// The dashboard reports insights_pending until it is done.
func (h *AdminHandler) Refresh(c echo.Context) error {
	quarter := quarterParam(c, &h.ServerState)
	h.Engine.Refresh(c.Request().Context(), quarter)
	return c.JSON(http.StatusAccepted, map[string]string{"quarter": quarter})
}

func (h *AdminHandler) Export(c echo.Context) error {
	d, err := h.Engine.AdminDashboard(c.Request().Context(), quarterParam(c, &h.ServerState))
	if err != nil {
		return errorResponse(c, err)
	}
	report := export.Build(d, "")

	var buf bytes.Buffer
	var contentType, ext string
	switch format := c.QueryParam("format"); format {
	case "", "csv":
		contentType, ext = "text/csv; charset=utf-8", "csv"
		err = report.WriteCSV(&buf)
	case "xlsx":
		contentType, ext = xlsxMIME, "xlsx"
		err = report.WriteXLSX(&buf)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unsupported format %q", format))
	}
	if err != nil {
		c.Logger().Errorf("Failed to write %s report: %v", ext, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate report")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.Filename(ext)))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

func (h *AdminHandler) Departments(c echo.Context) error {
	departments, err := h.Store.ListDepartments(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, departments)
}

func (h *AdminHandler) CreateDepartment(c echo.Context) error {
	req := new(DepartmentRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dept, err := h.Store.CreateDepartment(c.Request().Context(), req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, dept)
}

func (h *AdminHandler) UpdateRole(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	req := new(RoleRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	user, err := h.Store.GetUser(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	user.Role = req.Role
	if err := h.Store.UpdateUser(ctx, user); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, user)
}
