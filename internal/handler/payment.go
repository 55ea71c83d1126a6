package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/service"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func userIDFromContext(c echo.Context) (string, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return userID, nil
}

func (h *PaymentHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.paymentService.Checkout(ctx, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "group not found")
		case errors.Is(err, service.ErrGroupClosed):
			return echo.NewHTTPError(http.StatusConflict, "group is no longer accepting members")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Callback is where the gateway sends the payer after the payment attempt.
// Zarinpal reports the outcome in the Status query param.
func (h *PaymentHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	authority := c.QueryParam("Authority")
	if authority == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authority")
	}
	approved := c.QueryParam("Status") == "OK"

	result, err := h.paymentService.HandleCallback(ctx, authority, approved)
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown payment authority")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}
