package identity

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/pkg/pagination"
)

type Handler struct {
	dir *Directory
}

func NewHandler(dir *Directory) *Handler {
	return &Handler{dir: dir}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleNurse))
	g.GET("/contacts", h.ListContacts)
	g.GET("/me", h.GetMe)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	staff.GET("/users/:id", h.GetUser)
}

func (h *Handler) ListContacts(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	contacts, total, err := h.dir.Contacts(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(contacts, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMe(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	u, err := h.dir.GetByID(c.Request().Context(), id.UserID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	u, err := h.dir.GetByID(c.Request().Context(), userID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}
