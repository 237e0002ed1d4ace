package httperr

import (
	"errors"
	"net/http"
)

// Error is an error which knows the http status it should be rendered with.
type Error struct {
	Err    error
	Status int
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return t.Status == e.Status && errors.Is(t.Err, e.Err)
}

func New(err error, status int) error {
	return &Error{
		Err:    err,
		Status: status,
	}
}

// Status returns the http status of err, falling back to 500.
func Status(err error) int {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return http.StatusInternalServerError
}

func NotFound(err error) error {
	return New(err, http.StatusNotFound)
}

func BadRequest(err error) error {
	return New(err, http.StatusBadRequest)
}

func Forbidden(err error) error {
	return New(err, http.StatusForbidden)
}

func Conflict(err error) error {
	return New(err, http.StatusConflict)
}

func TooManyRequests(err error) error {
	return New(err, http.StatusTooManyRequests)
}

func BadGateway(err error) error {
	return New(err, http.StatusBadGateway)
}

func ServiceUnavailable(err error) error {
	return New(err, http.StatusServiceUnavailable)
}

func InternalServerError(err error) error {
	return New(err, http.StatusInternalServerError)
}

func Unauthorized(err error) error {
	return New(err, http.StatusUnauthorized)
}
