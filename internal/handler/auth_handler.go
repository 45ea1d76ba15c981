package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hive-auth/internal/cookie"
	"hive-auth/internal/middleware"
	"hive-auth/internal/model"
	"hive-auth/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
	cookies cookie.Policy
}

func NewAuthHandler(service *service.AuthService, cookies cookie.Policy) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.service.Login(r.Context(), payload.Email, payload.Password, deviceFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	establishSession(w, h.cookies, http.StatusOK, issued)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.service.Register(r.Context(), payload, deviceFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	establishSession(w, h.cookies, http.StatusCreated, issued)
}

func (h *AuthHandler) RegisterWithInvitation(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.service.RegisterWithInvitation(r.Context(), payload, deviceFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	establishSession(w, h.cookies, http.StatusCreated, issued)
}

// Refresh reads only the refresh cookie. A failed refresh clears it so the
// browser stops presenting a dead token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	issued, err := h.service.Refresh(r.Context(), h.cookies.RefreshFrom(r), deviceFromRequest(r))
	if err != nil {
		// A just-rotated cookie may sit in the same jar as its successor.
		if !errors.Is(err, service.ErrRefreshRotated) {
			h.cookies.ClearRefresh(w)
		}
		writeError(w, err)
		return
	}

	establishSession(w, h.cookies, http.StatusOK, issued)
}

func (h *AuthHandler) SwitchHive(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.SwitchHiveRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	switched, err := h.service.SwitchHive(r.Context(), claims, payload.HiveID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, switched, nil)
}

// Logout always succeeds. The access token is optional; the cookie alone is
// enough to find the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	h.service.Logout(r.Context(), h.cookies.RefreshFrom(r), claims, deviceFromRequest(r))

	h.cookies.ClearRefresh(w)
	rotateCSRF(w, h.cookies)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.ClearRefresh(w)
	rotateCSRF(w, h.cookies)
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": revoked}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	me, err := h.service.Me(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, me, nil)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, sessions, nil)
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeSession(r.Context(), claims, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"revoked": true}, nil)
}

func (h *AuthHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.CreateInvitationRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.service.CreateInvitation(r.Context(), claims, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created, nil)
}

// CSRF exists so a fresh client can obtain the CSRF cookie before its first
// mutation; the middleware sets the cookie.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"header": h.cookies.CSRFHeader}, nil)
}

func establishSession(w http.ResponseWriter, policy cookie.Policy, status int, issued model.IssuedSession) {
	policy.SetRefresh(w, issued.RefreshToken, issued.RefreshExpiresAt)
	rotateCSRF(w, policy)
	writeSuccess(w, status, issued.Payload, nil)
}

func rotateCSRF(w http.ResponseWriter, policy cookie.Policy) {
	if _, err := policy.IssueCSRF(w); err != nil {
		slog.Error("csrf.rotate.fail", "error", err)
	}
}
