package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/adt/internal/platform/apperr"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/practitioners/resolve", h.ResolvePhysician)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.resolver.ResolvePatient(c.Request().Context(), id)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status == http.StatusBadRequest {
			status = http.StatusNotFound
		}
		return echo.NewHTTPError(status, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// ResolvePhysician lets a client check a physician reference before
// submitting an admission. Query params: id, code, name.
func (h *Handler) ResolvePhysician(c echo.Context) error {
	ref := PhysicianRef{Code: c.QueryParam("code"), Name: c.QueryParam("name")}
	if raw := c.QueryParam("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		ref.ID = &id
	}
	p, err := h.resolver.ResolvePhysician(c.Request().Context(), ref)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
