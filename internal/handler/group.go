package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"groupbuy-backend/internal/service"
)

type GroupHandler struct {
	groupService service.GroupService
}

func NewGroupHandler(groupService service.GroupService) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
	}
}

func (h *GroupHandler) Summary(c echo.Context) error {
	ctx := c.Request().Context()

	groupID, err := groupIDFromParam(c)
	if err != nil {
		return err
	}

	summary, err := h.groupService.Summary(ctx, groupID)
	if err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "group not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
