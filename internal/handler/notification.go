package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/store"
)

type NotificationHandler struct {
	notifications *store.NotificationStore
	prefs         *store.PreferenceStore
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, ps *store.PreferenceStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: ns, prefs: ps, logger: logger}
}

// List handles GET /api/notifications?unread=true&limit=N
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	unread := r.URL.Query().Get("unread") == "true"

	list, err := h.notifications.ListByUser(r.Context(), userID, unread, queryLimit(r, 50, 200))
	if err != nil {
		internalError(w, h.logger, "list notifications", err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.CountUnread(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "count unread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	ok, err := h.notifications.MarkRead(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "mark read", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "no such notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "mark all read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// GetPreferences handles GET /api/notifications/preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type preferenceRequest struct {
	TaskPosted   *bool `json:"task_posted"`
	TaskAccepted *bool `json:"task_accepted"`
	TaskUpdated  *bool `json:"task_updated"`
}

// UpdatePreferences handles PUT /api/notifications/preferences. Omitted
// fields keep their current value.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())
	p, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		internalError(w, h.logger, "get preferences", err)
		return
	}
	if req.TaskPosted != nil {
		p.TaskPosted = *req.TaskPosted
	}
	if req.TaskAccepted != nil {
		p.TaskAccepted = *req.TaskAccepted
	}
	if req.TaskUpdated != nil {
		p.TaskUpdated = *req.TaskUpdated
	}

	p, err = h.prefs.Set(r.Context(), p)
	if err != nil {
		internalError(w, h.logger, "set preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
