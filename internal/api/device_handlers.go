package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/services"
)

type PushTokenRequest struct {
	Token string `json:"token"`
}

func (h *handler) putPushToken(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req PushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.devices.RegisterPushToken(r.Context(), claims.AccountID, deviceID, req.Token)
	switch {
	case errors.Is(err, services.ErrInvalidPushToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "push token update failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
