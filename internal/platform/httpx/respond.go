// Package httpx provides HTTP response utilities using the platform JSON envelope.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Envelope is the body shape shared by every JSON endpoint.
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []ErrorField `json:"errors,omitempty"`
}

// ErrorField describes one problem attached to a failed response.
type ErrorField struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK wraps data in a successful envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failed envelope.
func Fail(w http.ResponseWriter, status int, message string, errs ...ErrorField) {
	JSON(w, status, Envelope{Success: false, Message: message, Errors: errs})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// Bind decodes the JSON body into dst and validates it, writing a 400 and
// returning false on failure.
func Bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := DecodeJSON(r, dst); err != nil {
		Fail(w, http.StatusBadRequest, "malformed request body", ErrorField{Message: err.Error()})
		return false
	}
	if err := v.Struct(dst); err != nil {
		ValidationFailed(w, err)
		return false
	}
	return true
}
