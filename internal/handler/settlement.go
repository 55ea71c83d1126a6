package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"groupbuy-backend/internal/service"
)

type SettlementHandler struct {
	settlementService service.SettlementService
	paymentService    service.PaymentService
}

func NewSettlementHandler(settlementService service.SettlementService, paymentService service.PaymentService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		paymentService:    paymentService,
	}
}

func groupIDFromParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("groupID"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid group id")
	}
	return uint(id), nil
}

func (h *SettlementHandler) Check(c echo.Context) error {
	ctx := c.Request().Context()

	groupID, err := groupIDFromParam(c)
	if err != nil {
		return err
	}

	result, err := h.settlementService.CheckAndMark(ctx, groupID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "group not found")
		case errors.Is(err, service.ErrLeaderOrderNotFound):
			return echo.NewHTTPError(http.StatusConflict, "group has no leader order")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Pay starts a gateway payment for the group's settlement debt. The money
// lands back through the shared payment callback.
func (h *SettlementHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()

	groupID, err := groupIDFromParam(c)
	if err != nil {
		return err
	}

	result, err := h.paymentService.StartSettlementPayment(ctx, groupID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "group not found")
		case errors.Is(err, service.ErrNoSettlementRequired):
			return echo.NewHTTPError(http.StatusBadRequest, "group has no settlement debt")
		case errors.Is(err, service.ErrLeaderOrderNotFound):
			return echo.NewHTTPError(http.StatusConflict, "group has no leader order")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}
