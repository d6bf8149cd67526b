package api

import (
	"fmt"
	"net/http"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
	"sessionlog/internal/storage"
)

// sessionCollection serves the sessions of one user. The user is never looked
// up, so sessions may be created for an id that has no user document.
func (h *Handler) sessionCollection(w http.ResponseWriter, r *http.Request, rawUserID string) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		writeMethodNotAllowed(w, r, "GET, POST")
		return
	}

	userID, err := storage.ParseID(rawUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := query.SessionFilter(userID, r.URL.Query())
		sessions, err := h.Store.Find(r.Context(), models.CollectionSessions, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("list sessions for user %s: %w", rawUserID, err))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	case http.MethodPost:
		body, err := decodeDocument(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		doc := NewSessionDocument(userID, body, h.now())
		result, err := h.Store.InsertOne(r.Context(), models.CollectionSessions, doc)
		if err != nil {
			h.fail(w, r, fmt.Errorf("create session for user %s: %w", rawUserID, err))
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request, rawUserID, rawSessionID string) {
	switch r.Method {
	case http.MethodGet, http.MethodPatch, http.MethodDelete:
	default:
		writeMethodNotAllowed(w, r, "GET, PATCH, DELETE")
		return
	}

	userID, err := storage.ParseID(rawUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessionID, err := storage.ParseID(rawSessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := query.SessionByID(userID, sessionID)

	switch r.Method {
	case http.MethodGet:
		session, found, err := h.Store.FindOne(r.Context(), models.CollectionSessions, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("get session %s: %w", rawSessionID, err))
			return
		}
		if !found {
			writeNotFound(w, "session")
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodPatch:
		set, err := decodeDocument(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		result, err := h.Store.UpdateOne(r.Context(), models.CollectionSessions, filter, sessionPatch(set))
		if err != nil {
			h.fail(w, r, fmt.Errorf("update session %s: %w", rawSessionID, err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		result, err := h.Store.DeleteOne(r.Context(), models.CollectionSessions, filter)
		if err != nil {
			h.fail(w, r, fmt.Errorf("delete session %s: %w", rawSessionID, err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
