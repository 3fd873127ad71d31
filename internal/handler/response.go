package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-user-portal/internal/model"
	"go-user-portal/pkg/apierror"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps service errors onto the status taxonomy. Anything
// unclassified is logged and reported as a bare 500 so internal detail never
// reaches the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrEmailTaken):
		status = http.StatusConflict
		body.Code = "CONFLICT"
		body.Message = "User already exists"
	case errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrSessionNotFound):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Not authorized"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	writeJSON(w, status, model.ErrorResponse{Error: body})
}
