package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrPartitionIO      = errors.New("partition io failure")
	ErrMemoryPressure   = errors.New("memory pressure could not be relieved")
	ErrStatsPersisted   = errors.New("corpus statistics already persisted")
	ErrStatsMissing     = errors.New("corpus statistics not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrIndexNotBuilt    = errors.New("index not built")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error chain onto the status the search API reports.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrStatsMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrStatsPersisted):
		return http.StatusConflict
	case errors.Is(err, ErrIndexNotBuilt), errors.Is(err, ErrTimeout), errors.Is(err, ErrMemoryPressure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
