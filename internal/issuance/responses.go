package issuance

// responses.go provides helpers for sending the JSON responses of the issuance endpoint.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studentid/walletpass/internal/logger"
)

// MessageResponse is the body of every issuance response.
type MessageResponse struct {
	Message string `json:"message" example:"Pass Created"`
}

// StatusForError maps an issuance error to the HTTP status and response message.
//
// When legacyStatusCodes is set unhandled failures are reported with status 200,
// otherwise with 500.
func StatusForError(err error, legacyStatusCodes bool) (int, string) {
	var ie *IssuanceError
	if !errors.As(err, &ie) {
		ie = &IssuanceError{kind: KindUnhandled, message: err.Error(), wrapped: err}
	}

	switch ie.kind {
	case KindValidation:
		return http.StatusBadRequest, ie.message
	case KindStorage:
		return http.StatusInternalServerError, ie.message
	case KindEmail:
		return http.StatusBadRequest, ie.message
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge, ie.message
	default:
		if legacyStatusCodes {
			return http.StatusOK, ie.message
		}
		return http.StatusInternalServerError, ie.message
	}
}

// RespondWithError logs the full error and sends the mapped status and message.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error, legacyStatusCodes bool) {
	status, message := StatusForError(err, legacyStatusCodes)

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("Pass request failed",
		slog.String("error", err.Error()),
		slog.String("kind", KindOf(err).String()),
		slog.Int("status_code", status),
	)

	RespondWithMessage(w, status, message)
}

// RespondWithMessage sends {"message": message} with the given status code.
func RespondWithMessage(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSONPayload(w, statusCode, MessageResponse{Message: message})
}

// RespondWithJSONPayload sends a JSON response with the given status code
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// headers are already written
			slog.Error("Failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}
