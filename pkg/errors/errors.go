package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrExtraction            = errors.New("extraction warning")
	ErrEmptyCorpus           = errors.New("empty corpus")
	ErrDegenerateVocabulary  = errors.New("degenerate vocabulary")
	ErrIndexNotLoaded        = errors.New("index not loaded")
	ErrInvalidQueryParameter = errors.New("invalid query parameter")
	ErrSnapshotCorrupt       = errors.New("snapshot corrupt")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
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

// IsFatalBuild reports whether err means no usable index can be produced
// from the corpus.
func IsFatalBuild(err error) bool {
	return errors.Is(err, ErrEmptyCorpus) || errors.Is(err, ErrDegenerateVocabulary)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQueryParameter), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotLoaded), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrEmptyCorpus), errors.Is(err, ErrDegenerateVocabulary):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
