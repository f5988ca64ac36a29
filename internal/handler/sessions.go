package handler

import (
	"log/slog"
	"net/http"

	"vibesession/internal/httputil"
	"vibesession/internal/service/chat"
)

// SessionHandler handles session HTTP requests
// Handlers only communicate with the service layer, never repositories
type SessionHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *chat.Service, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: logger}
}

// ListSessions returns the caller's sessions, most recently updated first
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	sessions, err := h.service.ListSessions(r.Context(), userName)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// CreateSession creates a new untitled session
// POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	session, err := h.service.CreateSession(r.Context(), userName)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, session)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// RenameSession sets a session title
// PATCH /api/sessions/{id}
func (h *SessionHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	userName := httputil.GetUserName(r)

	var req renameSessionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.RenameSession(r.Context(), sessionID, userName, req.Title); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": sessionID, "title": req.Title})
}

// AutoTitleSession generates a title for the session from its transcript
// POST /api/sessions/{id}/title
func (h *SessionHandler) AutoTitleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	userName := httputil.GetUserName(r)

	title, err := h.service.AutoTitleSession(r.Context(), sessionID, userName)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": sessionID, "title": title})
}

// DeleteSession removes a session with its messages and embeddings
// DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	userName := httputil.GetUserName(r)

	deleted, err := h.service.DeleteSession(r.Context(), sessionID, userName)
	if err != nil {
		handleError(w, err)
		return
	}
	if !deleted {
		httputil.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
