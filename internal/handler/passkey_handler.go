package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hive-auth/internal/cookie"
	"hive-auth/internal/model"
	"hive-auth/internal/service"
)

type PasskeyHandler struct {
	service *service.PasskeyService
	cookies cookie.Policy
}

func NewPasskeyHandler(service *service.PasskeyService, cookies cookie.Policy) *PasskeyHandler {
	return &PasskeyHandler{service: service, cookies: cookies}
}

func (h *PasskeyHandler) AuthOptions(w http.ResponseWriter, r *http.Request) {
	var payload model.PasskeyAuthOptionsRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	options, err := h.service.GenerateAuthOptions(r.Context(), payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, options, nil)
}

func (h *PasskeyHandler) VerifyAuth(w http.ResponseWriter, r *http.Request) {
	var payload model.PasskeyVerifyAuthRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.service.VerifyAuth(r.Context(), payload.SessionID, payload.Response, deviceFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	establishSession(w, h.cookies, http.StatusOK, issued)
}

func (h *PasskeyHandler) RegOptions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	options, err := h.service.GenerateRegOptions(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, options, nil)
}

func (h *PasskeyHandler) VerifyReg(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.PasskeyVerifyRegRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.service.VerifyReg(r.Context(), claims, payload, deviceFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"verified": true, "passkey": summary}, nil)
}

func (h *PasskeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	passkeys, err := h.service.List(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, passkeys, nil)
}

func (h *PasskeyHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), claims, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"removed": true}, nil)
}
