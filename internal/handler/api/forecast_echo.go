package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/usecase"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	xlogger "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// Forecaster is the forecast usecase as seen by the HTTP layer.
type Forecaster interface {
	Ready(ctx context.Context) models.ReadyStatus
	Reload(ctx context.Context) (models.ReadyStatus, error)
	Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error)
}

// ForecastEchoHandler serves the health, readiness and prediction routes.
type ForecastEchoHandler struct {
	logger    *xlogger.Logger
	svc       Forecaster
	predictMW []echo.MiddlewareFunc
}

func NewForecastEchoHandler(logger *xlogger.Logger, svc Forecaster) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, svc: svc}
}

// UsePredict adds middleware to POST /predict only.
func (h *ForecastEchoHandler) UsePredict(mw ...echo.MiddlewareFunc) *ForecastEchoHandler {
	h.predictMW = append(h.predictMW, mw...)
	return h
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
	e.POST("/predict", h.Predict, h.predictMW...)
	e.POST("/reload", h.Reload)
}

// Health is liveness only and never looks at the model.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	return health(c)
}

// Ready always answers 200; callers read the ready flag.
func (h *ForecastEchoHandler) Ready(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Ready(c.Request().Context()))
}

func (h *ForecastEchoHandler) Reload(c echo.Context) error {
	st, err := h.svc.Reload(c.Request().Context())
	if err != nil {
		h.logger.Warn("reload failed", xlogger.Error(err))
		return xhttp.JSONResponse(c, http.StatusServiceUnavailable, st)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.Predict(c.Request().Context(), req)
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, res)
	case errors.Is(err, usecase.ErrModelUnavailable):
		return xhttp.ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, usecase.ErrUnknownStore), errors.Is(err, timeseries.ErrEmpty):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("predict timed out", xlogger.String("store_id", req.TargetStore()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_TIMEOUT", "prediction timed out", http.StatusGatewayTimeout))
	default:
		h.logger.Error("predict usecase error", xlogger.String("store_id", req.TargetStore()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("prediction failed").WithError(err))
	}
}

var _ Forecaster = (*usecase.ForecastService)(nil)
