package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/services"
	"github.com/prudhvinik1/homepresence/internal/utils"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	DeviceID   *uuid.UUID `json:"device_id,omitempty"`
	DeviceName string     `json:"device_name,omitempty"`
	DeviceType string     `json:"device_type,omitempty"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	account, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	switch {
	case errors.Is(err, utils.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "register failed")
	default:
		writeJSON(w, http.StatusCreated, account)
	}
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.auth.Login(r.Context(), services.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
	})
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "login failed")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), claims); err != nil {
		internalError(w, r, h.logger, err, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if err := h.auth.LogoutAll(r.Context(), claims); err != nil {
		internalError(w, r, h.logger, err, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
