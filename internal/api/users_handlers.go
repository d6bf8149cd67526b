package api

import (
	"fmt"
	"net/http"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
	"sessionlog/internal/storage"
)

func (h *Handler) userCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := query.UserFilter(r.URL.Query())
		users, err := h.Store.Find(r.Context(), models.CollectionUsers, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("list users: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		body, err := decodeDocument(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		result, err := h.Store.InsertOne(r.Context(), models.CollectionUsers, NewUserDocument(body, h.now()))
		if err != nil {
			h.fail(w, r, fmt.Errorf("create user: %w", err))
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w, r, "GET, POST")
	}
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request, rawID string) {
	switch r.Method {
	case http.MethodGet, http.MethodPatch, http.MethodDelete:
	default:
		writeMethodNotAllowed(w, r, "GET, PATCH, DELETE")
		return
	}

	id, err := storage.ParseID(rawID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := query.ByID(id)

	switch r.Method {
	case http.MethodGet:
		user, found, err := h.Store.FindOne(r.Context(), models.CollectionUsers, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("get user %s: %w", rawID, err))
			return
		}
		if !found {
			writeNotFound(w, "user")
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		set, err := decodeDocument(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		result, err := h.Store.UpdateOne(r.Context(), models.CollectionUsers, filter, set)
		if err != nil {
			h.fail(w, r, fmt.Errorf("update user %s: %w", rawID, err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		result, err := h.Store.DeleteOne(r.Context(), models.CollectionUsers, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("delete user %s: %w", rawID, err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
