package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"alpatrade/internal/dto"
)

func (h *HttpAPIHandler) SetupValidation(base *echo.Group) {
	v1 := base.Group("/v1")
	{
		v1.POST("/validate", h.validateRun)
		v1.POST("/reconcile", h.reconcileRun)
	}
}

func (h *HttpAPIHandler) validateRun(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.ValidationRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	verdict, err := h.service.Validator.Validate(ctx, *req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to validate run", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", verdict))
}

func (h *HttpAPIHandler) reconcileRun(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.ReconciliationRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	report, err := h.service.Reconciler.Reconcile(ctx, *req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to reconcile run", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", report))
}
