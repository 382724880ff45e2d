package messaging

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/pkg/pagination"
)

type Handler struct {
	store  *Store
	router *Router
}

func NewHandler(store *Store, router *Router) *Handler {
	return &Handler{store: store, router: router}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleNurse))
	g.GET("/conversations/:contact_id/messages", h.GetHistory)
	g.POST("/conversations/:contact_id/messages", h.SendMessage)
	g.POST("/messages/:id/read", h.MarkRead)
	g.GET("/messages/unread-count", h.UnreadCount)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	contactID, err := parseID(c, "contact_id")
	if err != nil {
		return err
	}
	msgs, err := h.store.History(c.Request().Context(), id.UserID, contactID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(msgs, pg), len(msgs), pg.Limit, pg.Offset))
}

type sendRequest struct {
	Content string `json:"content" form:"content"`
}

func (h *Handler) SendMessage(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	contactID, err := parseID(c, "contact_id")
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.router.Send(c.Request().Context(), id, contactID, req.Content)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	messageID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.store.MarkReadAs(c.Request().Context(), id, messageID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.store.UnreadCount(c.Request().Context(), id.UserID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}
