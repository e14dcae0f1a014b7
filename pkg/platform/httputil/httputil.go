// Package httputil translates domain errors into the JSON error envelope every
// transport handler returns, so status mapping lives in exactly one place.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "clicr/pkg/domain-errors"
)

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error to an HTTP status and the standard envelope.
// Internal errors omit the description so storage details never leak to
// clients; everything else carries the domain message.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	message := ""
	var de *dErrors.DomainError
	if errors.As(err, &de) {
		code = de.Code
		status = toHTTPStatus(de.Code)
		message = de.Message
	}

	body := map[string]string{"error": string(code)}
	if status != http.StatusInternalServerError && message != "" {
		body["error_description"] = message
	}
	WriteJSON(w, status, body)
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
