package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/serverhub/internal/dataset"
	"evalgo.org/serverhub/internal/filter"
	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/internal/validation"
)

// APIError represents a structured API error with HTTP status code. Type
// carries the error taxonomy name clients can dispatch on.
type APIError struct {
	Code    int    `json:"-"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewAPIError creates a new API error.
func NewAPIError(code int, errType, message string) *APIError {
	return &APIError{Code: code, Status: "error", Type: errType, Message: message}
}

// Common error constructors
func BadRequestError(errType, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, errType, message)
}

func NotFoundError(resource, name string) *APIError {
	return NewAPIError(http.StatusNotFound, "NotFound", fmt.Sprintf("%s %q not found", resource, name))
}

func InternalError(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, "InternalError", message)
}

// mapError translates an engine error into its API envelope. Malformed
// queries report as ValueError, bad input values as TypeError, constraint
// failures as ValidationError, rejected commits as CommitError and stale
// old values as CommitNewerData.
func mapError(err error) *APIError {
	var (
		apiErr      *APIError
		valueErr    *filter.ValueError
		castErr     *typecast.Error
		refErr      *typecast.UnknownReferenceError
		valErr      *validation.Error
		commitErr   *dataset.CommitError
		conflictErr *dataset.ConflictError
		notFoundErr *schema.NotFoundError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &valueErr):
		return BadRequestError("ValueError", valueErr.Error())
	case errors.As(err, &refErr):
		return BadRequestError("TypeError", refErr.Error())
	case errors.As(err, &castErr):
		return BadRequestError("TypeError", castErr.Error())
	case errors.As(err, &valErr):
		return BadRequestError("ValidationError", valErr.Error())
	case errors.As(err, &conflictErr):
		return NewAPIError(http.StatusConflict, "CommitNewerData", conflictErr.Error())
	case errors.As(err, &commitErr):
		return BadRequestError("CommitError", commitErr.Error())
	case errors.As(err, &notFoundErr):
		return BadRequestError("ValueError", notFoundErr.Error())
	}
	return InternalError(err.Error())
}

// HTTPErrorHandler is a custom error handler for Echo.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't send response if already sent
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	// Check if it's an Echo HTTPError
	if he, ok := err.(*echo.HTTPError); ok {
		apiErr = NewAPIError(he.Code, http.StatusText(he.Code), fmt.Sprintf("%v", he.Message))
	} else {
		apiErr = mapError(err)
	}

	// Don't expose internal errors in production
	if apiErr.Code == http.StatusInternalServerError && !c.Echo().Debug {
		apiErr.Message = "An internal error occurred. Please try again later."
	}

	// Send JSON response
	if err := c.JSON(apiErr.Code, apiErr); err != nil {
		c.Logger().Error(err)
	}
}
