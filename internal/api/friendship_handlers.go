package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/services"
)

type FriendRequest struct {
	Email string `json:"email"`
}

func (h *handler) requestFriendship(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req FriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	friendship, err := h.friendships.Request(r.Context(), claims.AccountID, req.Email)
	switch {
	case errors.Is(err, services.ErrSelfFriendship):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrFriendshipExists):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "friend request failed")
	default:
		writeJSON(w, http.StatusCreated, friendship)
	}
}

func (h *handler) acceptFriendship(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid friendship id")
		return
	}

	friendship, err := h.friendships.Accept(r.Context(), id, claims.AccountID)
	switch {
	case errors.Is(err, services.ErrFriendshipNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		internalError(w, r, h.logger, err, "friend accept failed")
	default:
		writeJSON(w, http.StatusOK, friendship)
	}
}

func (h *handler) listFriendships(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	friendships, err := h.friendships.List(r.Context(), claims.AccountID)
	if err != nil {
		internalError(w, r, h.logger, err, "friendship list failed")
		return
	}
	if friendships == nil {
		friendships = []*models.Friendship{}
	}
	writeJSON(w, http.StatusOK, friendships)
}
