package api

import (
	"errors"
	"net/http"

	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/prudhvinik1/homepresence/internal/services"
)

// putStatus overwrites the caller's shared status record. Owner, version
// and timestamp in the body are ignored.
func (h *handler) putStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var record models.StatusRecord
	if err := decodeJSON(w, r, &record); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record.Version = 0

	saved, err := h.status.Report(r.Context(), claims.AccountID, &record)
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "status write failed")
	default:
		writeJSON(w, http.StatusOK, saved)
	}
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	record, err := h.status.Get(r.Context(), claims.AccountID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		writeError(w, http.StatusNotFound, "no status reported yet")
	case err != nil:
		internalError(w, r, h.logger, err, "status read failed")
	default:
		writeJSON(w, http.StatusOK, record)
	}
}

func (h *handler) friendStatuses(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	records, err := h.status.FriendStatuses(r.Context(), claims.AccountID)
	if err != nil {
		internalError(w, r, h.logger, err, "friend status read failed")
		return
	}
	if records == nil {
		records = []*models.StatusRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
