package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps every API body. Error responses carry their items in Data.
type Envelope struct {
	Status  int    `json:"status" example:"200"`
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string         `json:"field,omitempty" example:"range"`
	Message string         `json:"message,omitempty" example:"range must be one of [today day1 week1]"`
	Params  map[string]any `json:"params,omitempty"`
}

func writeEnvelope(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data any) error {
	return writeEnvelope(c, http.StatusOK, data)
}

func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return writeEnvelope(c, http.StatusBadRequest, errs)
}

// AppErrorResponse writes err with its own status.
func AppErrorResponse(c echo.Context, err *AppError) error {
	return writeEnvelope(c, err.Status, []*AppError{err})
}

// ErrorResponse maps err through rules (see MapError) and writes the result.
func ErrorResponse(c echo.Context, err error, rules ...ErrorRule) error {
	return AppErrorResponse(c, MapError(err, rules...))
}
