package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"hive-auth/internal/middleware"
	"hive-auth/internal/model"
	"hive-auth/pkg/apierror"
)

const maxBodyBytes = 64 << 10

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

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
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Invalid email or password"
	case errors.Is(err, model.ErrEmailTaken):
		status = http.StatusConflict
		body.Code = "EMAIL_TAKEN"
		body.Message = "An account with this email already exists"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrHiveNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Hive not found"
	case errors.Is(err, model.ErrPasskeyNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Passkey not found"
	case errors.Is(err, model.ErrNotHiveMember), errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrSessionRevoked),
		errors.Is(err, model.ErrSessionExpired),
		errors.Is(err, model.ErrRefreshReused),
		errors.Is(err, model.ErrRefreshReuseDetected):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Session is not active"
	case errors.Is(err, model.ErrInvitationInvalid):
		status = http.StatusBadRequest
		body.Code = "INVALID_OR_EXPIRED_INVITE"
		body.Message = "Invitation is invalid or has expired"
	case errors.Is(err, model.ErrChallengeNotFound):
		status = http.StatusBadRequest
		body.Code = "VERIFICATION_FAILED"
		body.Message = "Passkey verification failed"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "VALIDATION"
		body.Message = "Invalid input"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a bounded JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*model.AuthClaims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return nil, false
	}
	return claims, true
}

func deviceFromRequest(r *http.Request) model.DeviceInfo {
	return model.DeviceInfo{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        middleware.ClientIP(r),
	}
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
