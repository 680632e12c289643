package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// JSONResponse writes v as-is with the given status.
func JSONResponse(c echo.Context, status int, v interface{}) error {
	return c.JSON(status, v)
}

// SuccessResponse writes v with 200.
func SuccessResponse(c echo.Context, v interface{}) error {
	return c.JSON(http.StatusOK, v)
}

// ErrorResponse writes {"error": msg}.
func ErrorResponse(c echo.Context, status int, msg string) error {
	return c.JSON(status, ErrorBody{Error: msg})
}

// BadRequestResponse writes a 400 listing every violated field.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ErrorBody{
		Error:   "invalid request",
		Code:    "ERR_VALIDATION",
		Details: errs,
	})
}

// AppErrorResponse writes an AppError with its status, anything else as 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, ErrorBody{Error: appErr.Message, Code: appErr.Code})
	}
	return ErrorResponse(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
