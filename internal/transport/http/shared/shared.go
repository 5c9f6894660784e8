// Package shared centralizes JSON envelope and domain error translation
// so every handler returns the same shapes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "civicledger/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError translates a coded domain error into an HTTP response.
// Uncoded errors collapse to 500 with no detail leaked.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	envelope := errorEnvelope{Error: string(code)}
	var e *dErrors.Error
	if errors.As(err, &e) {
		envelope.Message = e.Message
	}
	WriteJSON(w, toHTTPStatus(code), envelope)
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeInvalidSignature:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyExists, dErrors.CodeAlreadyRevoked, dErrors.CodeAlreadyDeleted:
		return http.StatusConflict
	case dErrors.CodeNotAuthorized:
		return http.StatusForbidden
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTxFailed, dErrors.CodeSplitBrain:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
