package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError carries the status code and the user-facing message for a failure.
type HTTPError struct {
	cause   error
	Code    int
	Message string
}

func (he *HTTPError) Error() string {
	return he.Message
}

func (he *HTTPError) Unwrap() error {
	return he.cause
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{cause: errors.New(message), Code: code, Message: message}
}

func NewHTTPErrorWrap(code int, message string, cause error) *HTTPError {
	return &HTTPError{cause: cause, Code: code, Message: message}
}

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

func ErrBadRequestWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusBadRequest, message, cause)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message)
}

func ErrForbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message)
}

func ErrConflict(message string) *HTTPError {
	return NewHTTPError(http.StatusConflict, message)
}

func ErrInternalServerWrap(message string, cause error) *HTTPError {
	return NewHTTPErrorWrap(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), fmt.Errorf("%s: %w", message, cause))
}

// StatusError maps err to the status registered for its sentinel in table.
// Sentinels in one table must not wrap each other. Unmatched errors become 500s.
func StatusError(err error, table map[error]int) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	for sentinel, code := range table {
		if errors.Is(err, sentinel) {
			return NewHTTPErrorWrap(code, err.Error(), err)
		}
	}
	return ErrInternalServerWrap("request failed", err)
}
