package api

import (
	"github.com/labstack/echo/v4"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
)

// HealthHandler serves GET /health for processes without other routes.
type HealthHandler struct{}

func (HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", health)
}

func health(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.HealthStatus{Status: "ok"})
}
