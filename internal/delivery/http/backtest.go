package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"alpatrade/internal/dto"
)

func (h *HttpAPIHandler) SetupBacktest(base *echo.Group) {
	backtestGroup := base.Group("/v1/backtest")
	backtestGroup.POST("", h.runBacktest)
}

// runBacktest runs a grid sweep synchronously, outside the pipeline. Useful
// for parameter exploration before dispatching a full run.
func (h *HttpAPIHandler) runBacktest(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.BacktestRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	result, err := h.service.BacktestRunner.Run(ctx, *req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to run backtest", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", result))
}
