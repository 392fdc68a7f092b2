// Package respond shapes the uniform JSON envelope returned by every
// endpoint. The HTTP status code always equals the embedded code.
package respond

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/apperr"
)

// Envelope is the wire format for all API responses.
type Envelope struct {
	Status  string      `json:"status"` // success | danger | warning
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Result  interface{} `json:"result"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, result interface{}, message string) error {
	return success(c, http.StatusOK, result, message)
}

// Created writes a 201 success envelope.
func Created(c echo.Context, result interface{}, message string) error {
	return success(c, http.StatusCreated, result, message)
}

func success(c echo.Context, code int, result interface{}, message string) error {
	return c.JSON(code, Envelope{
		Status:  "success",
		Code:    code,
		Message: message,
		Result:  result,
	})
}

// Error maps an application error to its HTTP status and envelope.
// Validation errors carry the field→reason map in result.
func Error(c echo.Context, err error) error {
	code := statusFor(apperr.KindOf(err))

	var result interface{}
	message := err.Error()
	if fields := apperr.FieldsOf(err); fields != nil {
		result = map[string]interface{}{"errors": fields}
	}
	if code == http.StatusInternalServerError {
		// Internal detail stays in the logs.
		message = "internal server error"
	}

	return c.JSON(code, Envelope{
		Status:  "danger",
		Code:    code,
		Message: message,
		Result:  result,
	})
}

// ErrorHandler renders every error echo sees, including ones raised by
// middleware and by the router itself, as the uniform envelope.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				message = s
			}
			_ = c.JSON(he.Code, Envelope{
				Status:  "danger",
				Code:    he.Code,
				Message: message,
			})
			return
		}
		_ = Error(c, err)
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
