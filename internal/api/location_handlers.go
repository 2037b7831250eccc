package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/services"
)

func (h *handler) listLocations(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	bindings, err := h.locations.List(r.Context(), claims.AccountID)
	if err != nil {
		internalError(w, r, h.logger, err, "location list failed")
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

func (h *handler) putLocation(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var binding models.LocationBinding
	if err := decodeJSON(w, r, &binding); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.locations.Put(r.Context(), claims.AccountID, &binding)
	switch {
	case errors.Is(err, services.ErrInvalidBinding):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "location save failed")
	default:
		writeJSON(w, http.StatusOK, saved)
	}
}

func (h *handler) deleteLocation(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	err = h.locations.Delete(r.Context(), claims.AccountID, id)
	switch {
	case errors.Is(err, services.ErrBindingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "location delete failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
