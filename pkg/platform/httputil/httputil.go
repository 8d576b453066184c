// Package httputil centralizes the HTTP envelope. Every response, success or
// failure, is `{success, data?, error?}` so clients parse one shape.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "irrl/pkg/domain-errors"
)

// Envelope is the wire shape of every response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a coded error on the wire.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteData writes a success envelope with the given status.
func WriteData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

// WriteError translates a domain error into the error envelope. Internal
// errors are reported with a generic message so nothing leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := ErrorBody{Code: string(code)}

	if de, ok := dErrors.AsError(err); ok && code != dErrors.CodeInternal {
		body.Message = de.Message
		body.Details = de.Details
	} else {
		body.Message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(Envelope{Success: false, Error: &body})
}

// Decode parses a JSON request body into T, reporting malformed input as a
// validation error.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, dErrors.Wrap(err, dErrors.CodeValidation, "invalid JSON body")
	}
	return v, nil
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidRealm, dErrors.CodeInvalidResolver,
		dErrors.CodeInvalidEvidence, dErrors.CodeInvalidParent:
		return http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeResolverNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyExists, dErrors.CodeAlreadyRevoked:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
