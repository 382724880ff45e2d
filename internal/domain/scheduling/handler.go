package scheduling

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/pkg/pagination"
)

type Handler struct {
	svc *Scheduler
}

func NewHandler(svc *Scheduler) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any signed-in user; patients are scoped to their own appointments.
	all := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleNurse))
	all.GET("/appointments", h.ListAppointments)
	all.GET("/appointments/:id", h.GetAppointment)
	all.POST("/appointments", h.ScheduleAppointment)
	all.DELETE("/appointments/:id", h.CancelAppointment)
	all.POST("/appointments/:id/join", h.JoinAppointment)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	staff.GET("/appointments/upcoming", h.ListUpcoming)
	staff.PUT("/appointments/:id/patient", h.LinkPatient)
}

func parseApptID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

func ownedBy(appts []*Appointment, patientID int64) []*Appointment {
	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		if a.PatientID != nil && *a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out
}

type partitionResponse struct {
	Upcoming []*Appointment `json:"upcoming"`
	Past     []*Appointment `json:"past"`
}

func (h *Handler) ListAppointments(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	upcoming, past, err := h.svc.Partition(c.Request().Context(), h.svc.now())
	if err != nil {
		return apperr.HTTPError(err)
	}
	if id.Role == auth.RolePatient {
		upcoming, past = ownedBy(upcoming, id.UserID), ownedBy(past, id.UserID)
	}
	return c.JSON(http.StatusOK, partitionResponse{Upcoming: upcoming, Past: past})
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	upcoming, err := h.svc.Upcoming(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(upcoming, pg), len(upcoming), pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	apptID, err := parseApptID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), apptID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if id.Role == auth.RolePatient && (a.PatientID == nil || *a.PatientID != id.UserID) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Schedule(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	apptID, err := parseApptID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), id, apptID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) JoinAppointment(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	apptID, err := parseApptID(c)
	if err != nil {
		return err
	}
	url, err := h.svc.Join(c.Request().Context(), id, apptID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"meeting_url": url})
}

type linkPatientRequest struct {
	PatientID int64 `json:"patient_id" form:"patient_id"`
}

func (h *Handler) LinkPatient(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	apptID, err := parseApptID(c)
	if err != nil {
		return err
	}
	var req linkPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.LinkPatient(c.Request().Context(), id, apptID, req.PatientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
