package adt

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/platform/apperr"
)

// ActorHeader names the user performing the request. It is recorded on
// assignment rows as assigned_by / released_by.
const ActorHeader = "X-Actor"

const defaultActor = "system"

type Handler struct {
	orch       *Orchestrator
	retryAfter time.Duration
}

// NewHandler builds the ADT endpoints. retryAfter is advertised on 503
// responses for lock timeouts and transient database errors.
func NewHandler(orch *Orchestrator, retryAfter time.Duration) *Handler {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &Handler{orch: orch, retryAfter: retryAfter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/admissions", h.Admit)
	api.GET("/encounters/:id", h.GetEncounter)
	api.GET("/encounters/:id/assignments", h.Assignments)
	api.POST("/encounters/:id/transfer", h.Transfer)
	api.POST("/encounters/:id/release-bed", h.ReleaseBed)
	api.POST("/encounters/:id/discharge", h.Discharge)
	api.PUT("/beds/:id/housekeeping", h.SetHousekeeping)
	api.GET("/beds/audit", h.AuditBeds)
}

func actor(c echo.Context) string {
	if a := c.Request().Header.Get(ActorHeader); a != "" {
		return a
	}
	return defaultActor
}

// fail maps err to an HTTP error carrying its kind and, for validation
// failures, the offending field.
func (h *Handler) fail(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	body := echo.Map{"error": apperr.Kind(err), "message": err.Error()}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		body["field"] = ve.Field
	}
	if apperr.Retryable(err) {
		body["retryable"] = true
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Round(time.Second)/time.Second)))
	}
	if status == http.StatusInternalServerError {
		body["message"] = "internal server error"
		return echo.NewHTTPError(status, body).SetInternal(err)
	}
	return echo.NewHTTPError(status, body)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.AssignedBy = actor(c)
	res, err := h.orch.Admit(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type transferBody struct {
	BedID  uuid.UUID `json:"bed_id"`
	Reason string    `json:"reason,omitempty"`
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body transferBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.orch.Transfer(c.Request().Context(), id, body.BedID, body.Reason, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type releaseBody struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) ReleaseBed(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body releaseBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.orch.ReleaseBed(c.Request().Context(), id, body.Notes, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var details encounter.DischargeDetails
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&details); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.orch.Discharge(c.Request().Context(), id, details, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.orch.GetEncounterDetail(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Assignments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rows, err := h.orch.Assignments(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows, "total": len(rows)})
}

type housekeepingBody struct {
	Status bed.Status `json:"status"`
}

func (h *Handler) SetHousekeeping(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var body housekeepingBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.orch.SetBedHousekeeping(c.Request().Context(), id, body.Status, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) AuditBeds(c echo.Context) error {
	report, err := h.orch.AuditBeds(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
