package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("requested resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden access")
	ErrBadRequest   = errors.New("bad request")

	// ErrConflict covers both uniqueness violations and a duplicate
	// in-flight execution for the same (user, challenge) pair.
	ErrConflict = errors.New("resource conflict")

	// ErrBusy means the executor pool queue is saturated. The caller should
	// retry with backoff; no submission record exists when this is returned.
	ErrBusy = errors.New("execution capacity saturated")

	// ErrInvalidChallenge means the challenge is not gradable (no test
	// cases, or zero point value).
	ErrInvalidChallenge = errors.New("challenge is not gradable")

	// ErrInfrastructure is an internal evaluation fault that survived one
	// retry. It is always distinct from a graded verdict.
	ErrInfrastructure = errors.New("internal evaluation error")

	ErrInternalServer = errors.New("internal server error")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidChallenge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInfrastructure):
		return http.StatusBadGateway
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
