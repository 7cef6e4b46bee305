package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"alpatrade/internal/dto"
)

func (h *HttpAPIHandler) SetupRuns(base *echo.Group) {
	v1 := base.Group("/v1/runs")
	{
		v1.POST("", h.dispatchRun)
		v1.GET("", h.listRuns)
		v1.GET("/:run_id", h.getRun)
	}
}

// dispatchRun starts a pipeline and answers immediately with the run ID; the
// pipeline keeps going in the background and progress lands in the run row.
func (h *HttpAPIHandler) dispatchRun(c echo.Context) error {
	ctx := c.Request().Context()

	cmd := new(dto.RunCommand)
	if err := c.Bind(cmd); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(cmd); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	handle, err := h.service.Orchestrator.Dispatch(ctx, *cmd)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	response := dto.NewBaseResponse(http.StatusAccepted, "Run dispatched", map[string]string{"run_id": handle.RunID})
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) listRuns(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	req := dto.ReportRequest{
		RunID: c.QueryParam("run_id"),
		Mode:  c.QueryParam("mode"),
		Limit: limit,
	}

	rows, err := h.service.Reporter.Summary(ctx, req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "failed to list runs", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", rows))
}

func (h *HttpAPIHandler) getRun(c echo.Context) error {
	ctx := c.Request().Context()

	detail, err := h.service.Reporter.Detail(ctx, c.Param("run_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, "run not found", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", detail))
}
