package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eventick/ms-go-ticketing/app/factory"
	"github.com/eventick/ms-go-ticketing/app/mapper"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/service"
	"github.com/eventick/ms-go-ticketing/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	providerReg    *provider.Registry
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService, providerReg *provider.Registry) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		providerReg:    providerReg,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	providers := map[string]bool{}
	for _, p := range c.providerReg.All() {
		providers[p.Name()] = p.Configured()
	}
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok", Providers: providers})
}

func (c *PaymentController) Checkout(ctx echo.Context) error {
	req, err := types.NewCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.Checkout(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrNothingToCharge):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrProviderRejected):
			return c.writeError(ctx, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, service.ErrProviderUnavailable):
			return c.writeError(ctx, http.StatusServiceUnavailable, "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) Capture(ctx echo.Context) error {
	req, err := types.NewCaptureRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.Capture(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrForbidden):
			return c.writeError(ctx, http.StatusForbidden, "transaction belongs to another user")
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrInvalidTransition):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrProviderUnavailable):
			return c.writeError(ctx, http.StatusServiceUnavailable, "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Capture failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) Refund(ctx echo.Context) error {
	req, err := types.NewRefundRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.Refund(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrInvalidTransition):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrProviderRejected):
			return c.writeError(ctx, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, service.ErrProviderUnavailable):
			return c.writeError(ctx, http.StatusServiceUnavailable, "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Refund failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

// HandleWebhook answers 2xx only when the event is safely recorded; any
// storage failure keeps the response 5xx so the provider redelivers.
func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	_, err = c.paymentService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrWebhookRejected):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Webhook processed"})
}

func (c *PaymentController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetTransaction(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			return c.writeError(ctx, http.StatusForbidden, "transaction belongs to another user")
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get transaction failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	events, err := c.paymentService.ListLedgerEvents(ctx.Request().Context(), item.ID)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List ledger events failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	resp := mapper.TransactionToResponse(item)
	resp.Events = mapper.LedgerEventsToResponse(events)
	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: resp})
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
