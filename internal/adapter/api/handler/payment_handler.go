package handler

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/usecase"
	"servicehub/pkg/response"
)

type PaymentHandler struct{}

func NewPaymentHandler() *PaymentHandler {
	return &PaymentHandler{}
}

func (h *PaymentHandler) ListPayments(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if c.QueryParam("status") == "pending" {
		return response.Success(c, s.Payments.PendingPayments())
	}
	return response.Success(c, s.Payments.Payments())
}

func (h *PaymentHandler) ListTransactions(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, s.Payments.Transactions())
}

func (h *PaymentHandler) Refresh(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Payments.RefreshPayments(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return h.ListPayments(c)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	payment, err := s.Payments.GetPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, payment)
}

// Summary reports completed earnings and spending as fixed two-decimal strings.
func (h *PaymentHandler) Summary(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"earnings": s.Payments.Earnings().StringFixed(2),
		"spending": s.Payments.Spending().StringFixed(2),
		"pending":  len(s.Payments.PendingPayments()),
	})
}

func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var input usecase.CreatePaymentIntentInput
	if err := bindAndValidate(c, &input); err != nil {
		return response.Error(c, err)
	}

	intent, err := s.Payments.CreatePaymentIntent(c.Request().Context(), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, intent)
}
