package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"portal.health/patient-portal/internal/core"
)

// scopedSessionID keeps session ids of different users apart in the session store.
func scopedSessionID(userID int64, sessionID string) string {
	return fmt.Sprintf("user-%d/%s", userID, sessionID)
}

func unscoped(resp *core.Response, sessionID string) *core.Response {
	out := *resp
	out.SessionID = sessionID
	return &out
}

type StartActivityRequest struct {
	SessionID    string `json:"session_id" validate:"omitempty,max=128,excludesall=/"`
	ActivityID   string `json:"activity_id" validate:"required"`
	ActivityType string `json:"activity_type" validate:"required"`
}

func (h *APIHandler) StartActivitySessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartActivityRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	userID := userIDFrom(r.Context())
	resp, err := h.activityService.StartSession(r.Context(), scopedSessionID(userID, req.SessionID), req.ActivityID, strings.TrimSpace(req.ActivityType))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unscoped(resp, req.SessionID))
}

func (h *APIHandler) ActiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	active, err := h.activityService.HasActiveSession(r.Context(), scopedSessionID(userIDFrom(r.Context()), sessionID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "active": active})
}

type ActivityMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

func (h *APIHandler) ActivityMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req ActivityMessageRequest
	if err := h.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	resp, err := h.activityService.ProcessInput(r.Context(), scopedSessionID(userIDFrom(r.Context()), sessionID), req.Message)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unscoped(resp, sessionID))
}

func (h *APIHandler) EndActivitySessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.activityService.EndSession(r.Context(), scopedSessionID(userIDFrom(r.Context()), sessionID)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
