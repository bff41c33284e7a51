package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldErrorer is implemented by errors that carry per-field details.
type FieldErrorer interface {
	FieldErrors() []ErrorField
}

// Status returns the HTTP status a domain error maps to.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Unknown errors become a
// bare 500 so internal details never leak.
func RespondError(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		Fail(w, status, http.StatusText(status))
		return
	}
	var fields []ErrorField
	var fe FieldErrorer
	if errors.As(err, &fe) {
		fields = fe.FieldErrors()
	}
	Fail(w, status, err.Error(), fields...)
}

// ValidationFailed writes a 400 listing every failed validator rule.
func ValidationFailed(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Fail(w, http.StatusBadRequest, ErrValidation.Error(), ErrorField{Message: err.Error()})
		return
	}
	fields := make([]ErrorField, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, ErrorField{Field: fe.Field(), Code: fe.Tag(), Message: fe.Error()})
	}
	Fail(w, http.StatusBadRequest, ErrValidation.Error(), fields...)
}
